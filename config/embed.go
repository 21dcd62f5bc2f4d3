package config

import _ "embed"

// defaultJWTSecret 内置配置中的占位密钥，release 模式下禁止使用
const defaultJWTSecret = "change-me-parish-secret"

// DefaultConfigYAML 内置默认配置
//
//go:embed config.yaml
var DefaultConfigYAML []byte

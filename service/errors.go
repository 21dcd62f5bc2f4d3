package service

import (
	"fmt"
)

// Kind 预算引擎错误种类
type Kind string

const (
	// 校验错误：写入前发现，不会留下任何部分状态
	KindInvalidHierarchy Kind = "InvalidHierarchy"
	KindInvalidRange     Kind = "InvalidRange"
	KindNegativeAmount   Kind = "NegativeAmount"
	KindInvalidTarget    Kind = "InvalidTarget"
	KindInvalidInput     Kind = "InvalidInput"

	// 冲突错误：当前状态下不允许，调用方可以改变意图后重试
	KindAlreadyPopulated  Kind = "AlreadyPopulated"
	KindOverlappingPeriod Kind = "OverlappingPeriod"
	KindInvalidTransition Kind = "InvalidTransition"
	KindPeriodClosed      Kind = "PeriodClosed"

	// 完整性错误：存储的树违反了不变量
	KindNodeInUse        Kind = "NodeInUse"
	KindHierarchyCorrupt Kind = "HierarchyCorrupt"

	KindNotFound  Kind = "NotFound"
	KindForbidden Kind = "Forbidden"
)

// Class 错误大类，API 层据此映射 HTTP 状态码
type Class int

const (
	ClassValidation Class = iota
	ClassConflict
	ClassIntegrity
	ClassNotFound
	ClassForbidden
)

// Class 返回错误种类所属大类
func (k Kind) Class() Class {
	switch k {
	case KindAlreadyPopulated, KindOverlappingPeriod, KindInvalidTransition, KindPeriodClosed:
		return ClassConflict
	case KindNodeInUse, KindHierarchyCorrupt:
		return ClassIntegrity
	case KindNotFound:
		return ClassNotFound
	case KindForbidden:
		return ClassForbidden
	}
	return ClassValidation
}

// Error 预算引擎错误，携带出错的实体与字段，便于前端给出可操作的提示
type Error struct {
	Kind     Kind   `json:"kind"`
	Entity   string `json:"entity,omitempty"`
	EntityID uint   `json:"entity_id,omitempty"`
	Field    string `json:"field,omitempty"`
	Message  string `json:"message"`
}

func (e *Error) Error() string {
	s := string(e.Kind)
	if e.Entity != "" {
		if e.EntityID != 0 {
			s += fmt.Sprintf(" [%s %d]", e.Entity, e.EntityID)
		} else {
			s += fmt.Sprintf(" [%s]", e.Entity)
		}
	}
	if e.Field != "" {
		s += " " + e.Field
	}
	return s + ": " + e.Message
}

// Is 按错误种类匹配，errors.Is(err, ErrInvalidTarget) 即可判断
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// 各种类的哨兵错误，只用于 errors.Is 比较
var (
	ErrInvalidHierarchy  = &Error{Kind: KindInvalidHierarchy}
	ErrInvalidRange      = &Error{Kind: KindInvalidRange}
	ErrNegativeAmount    = &Error{Kind: KindNegativeAmount}
	ErrInvalidTarget     = &Error{Kind: KindInvalidTarget}
	ErrInvalidInput      = &Error{Kind: KindInvalidInput}
	ErrAlreadyPopulated  = &Error{Kind: KindAlreadyPopulated}
	ErrOverlappingPeriod = &Error{Kind: KindOverlappingPeriod}
	ErrInvalidTransition = &Error{Kind: KindInvalidTransition}
	ErrPeriodClosed      = &Error{Kind: KindPeriodClosed}
	ErrNodeInUse         = &Error{Kind: KindNodeInUse}
	ErrHierarchyCorrupt  = &Error{Kind: KindHierarchyCorrupt}
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrForbidden         = &Error{Kind: KindForbidden}
)

func newError(kind Kind, entity string, id uint, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Entity: entity, EntityID: id, Message: fmt.Sprintf(format, args...)}
}

func fieldError(kind Kind, entity string, id uint, field, format string, args ...interface{}) *Error {
	e := newError(kind, entity, id, format, args...)
	e.Field = field
	return e
}

func notFound(entity string, id uint) *Error {
	return newError(KindNotFound, entity, id, "%s不存在", entityLabel(entity))
}

// 实体名称
const (
	EntityCategory     = "category"
	EntityItem         = "item"
	EntityPeriod       = "period"
	EntitySnapshotItem = "snapshot_item"
	EntityRealization  = "realization"
)

func entityLabel(entity string) string {
	switch entity {
	case EntityCategory:
		return "类别"
	case EntityItem:
		return "模板科目"
	case EntityPeriod:
		return "预算期间"
	case EntitySnapshotItem:
		return "期间科目"
	case EntityRealization:
		return "实际记录"
	}
	return entity
}

// DBError 数据库操作失败
type DBError struct {
	Operation string
	Err       error
}

func (e *DBError) Error() string {
	return fmt.Sprintf("database operation '%s' failed: %v", e.Operation, e.Err)
}

func (e *DBError) Unwrap() error {
	return e.Err
}

func dbError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &DBError{Operation: op, Err: err}
}

package service

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"io"
	"strings"

	"parish/config"
	"parish/models"

	"golang.org/x/sync/errgroup"
	"gopkg.in/gomail.v2"
)

// Sender 发信接口，*gomail.Dialer 即满足
type Sender interface {
	DialAndSend(m ...*gomail.Message) error
}

// ReportMailer 把期间报表发给财务人员
type ReportMailer struct {
	cfg      *config.EmailConfig
	reporter *Reporter
	sender   Sender
}

// NewReportMailer 创建报表邮件服务
func NewReportMailer(cfg *config.EmailConfig, reporter *Reporter) *ReportMailer {
	return &ReportMailer{
		cfg:      cfg,
		reporter: reporter,
		sender:   gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
	}
}

// WithSender 替换发信实现
func (s *ReportMailer) WithSender(sender Sender) *ReportMailer {
	s.sender = sender
	return s
}

// MailPeriodReport 发送期间报表，附带 xlsx
// to 为空时发给配置中的 report_recipients。
func (s *ReportMailer) MailPeriodReport(ctx context.Context, periodID uint, to []string) error {
	if !s.cfg.Enabled {
		return fmt.Errorf("邮件服务未启用，请配置 PARISH_EMAIL_ENABLED=true")
	}
	if len(to) == 0 {
		to = s.cfg.ReportRecipients
	}
	if len(to) == 0 {
		return fieldError(KindInvalidInput, EntityPeriod, periodID, "to", "没有收件人")
	}

	st, err := s.reporter.store.loadPeriodState(ctx, periodID)
	if err != nil {
		return err
	}
	// 附件与正文都只读内存中的快照视图，并行生成
	ps := st.periodSummary()
	var buf bytes.Buffer
	var body string
	var g errgroup.Group
	g.Go(func() error {
		f, err := buildWorkbook(st)
		if err != nil {
			return fmt.Errorf("生成 Excel 失败: %w", err)
		}
		defer f.Close()
		if err := f.Write(&buf); err != nil {
			return fmt.Errorf("生成 Excel 失败: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		body = s.generateReportBody(ps)
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", m.FormatAddress(s.cfg.Username, s.cfg.From))
	m.SetHeader("To", to...)
	m.SetHeader("Subject", fmt.Sprintf("【堂区预算】%s 预算执行报表", ps.Period.Name))
	m.SetBody("text/html", body)
	data := buf.Bytes()
	m.Attach(ExportFilename(&ps.Period), gomail.SetCopyFunc(func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	}))

	if err := s.sender.DialAndSend(m); err != nil {
		return fmt.Errorf("发送邮件失败: %w", err)
	}
	return nil
}

// generateReportBody 生成报表邮件正文
func (s *ReportMailer) generateReportBody(ps *PeriodSummary) string {
	var rows strings.Builder
	for _, cs := range ps.Categories {
		kind := "支出"
		if cs.Kind == models.CategoryKindIncome {
			kind = "收入"
		}
		pct := "-"
		if cs.VariancePct != nil {
			pct = cs.VariancePct.Shift(2).StringFixed(2) + "%"
		}
		fmt.Fprintf(&rows, "<tr><td>%s</td><td>%s</td><td>%s</td><td>%s</td><td>%s</td><td>%s</td></tr>\n",
			html.EscapeString(cs.CategoryName), kind,
			cs.TotalTarget.StringFixed(2), cs.TotalActual.StringFixed(2), cs.Variance.StringFixed(2), pct)
	}

	p := ps.Period
	return fmt.Sprintf(`
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <style>
        body { font-family: 'Microsoft YaHei', Arial, sans-serif; background: #f5f5f5; margin: 0; padding: 20px; }
        .container { max-width: 720px; margin: 0 auto; background: #fff; border-radius: 12px; overflow: hidden; }
        .header { background: linear-gradient(135deg, #2563eb, #1d4ed8); color: white; padding: 24px; text-align: center; }
        .content { padding: 30px; }
        table { width: 100%%; border-collapse: collapse; }
        th, td { border: 1px solid #ddd; padding: 8px; text-align: right; }
        th { background: #4F81BD; color: #fff; }
        td:first-child, th:first-child { text-align: left; }
        .footer { background: #f8f9fa; padding: 16px; text-align: center; color: #6c757d; font-size: 12px; }
    </style>
</head>
<body>
    <div class="container">
        <div class="header"><h2>%s</h2><p>%s ~ %s · %s</p></div>
        <div class="content">
            <table>
                <tr><th>类别</th><th>性质</th><th>目标</th><th>实际</th><th>差异</th><th>差异率</th></tr>
%s            </table>
            <p>收入：目标 %s，实际 %s</p>
            <p>支出：目标 %s，实际 %s</p>
            <p>结余：目标 %s，实际 %s</p>
            <p>明细见附件。</p>
        </div>
        <div class="footer"><p>此邮件由系统自动发送，请勿回复</p></div>
    </div>
</body>
</html>
`, html.EscapeString(p.Name), p.StartDate.Format("2006-01-02"), p.EndDate.Format("2006-01-02"), p.Status,
		rows.String(),
		ps.IncomeTarget.StringFixed(2), ps.IncomeActual.StringFixed(2),
		ps.ExpenditureTarget.StringFixed(2), ps.ExpenditureActual.StringFixed(2),
		ps.BalanceTarget.StringFixed(2), ps.BalanceActual.StringFixed(2))
}

package notify

import "html/template"

type emailTemplate struct {
	subject string
	body    *template.Template
}

const layout = `<!DOCTYPE html>
<html lang="zh-CN">
<head><meta charset="UTF-8"><title>{{template "title" .}}</title></head>
<body style="font-family: 'Segoe UI', Tahoma, sans-serif; color: #333;">
	<div style="max-width: 600px; margin: 0 auto; padding: 20px;">
		<h2>{{template "title" .}}</h2>
		<p>亲爱的 {{.Username}}，</p>
		{{template "content" .}}
		<p style="font-size: 0.8em; color: #777;">此邮件由系统自动发送，请勿直接回复。</p>
	</div>
</body>
</html>`

func mustTemplate(title, content string) *template.Template {
	t := template.Must(template.New("layout").Parse(layout))
	template.Must(t.New("title").Parse(title))
	template.Must(t.New("content").Parse(content))
	return t
}

var templates = map[string]emailTemplate{
	"order_placed": {
		subject: "订单已提交",
		body: mustTemplate("订单已提交",
			`<p>您的订单 <strong>{{.order_number}}</strong> 已提交，应付金额 {{.total}}。</p>
<p><a href="{{.SiteURL}}/orders">查看订单</a></p>`),
	},
	"order_status_changed": {
		subject: "订单状态更新",
		body: mustTemplate("订单状态更新",
			`<p>订单 <strong>{{.order_number}}</strong> 的状态已更新为 <strong>{{.status}}</strong>。</p>`),
	},
	"return_status_changed": {
		subject: "退货申请状态更新",
		body: mustTemplate("退货申请状态更新",
			`<p>退货申请 <strong>{{.return_number}}</strong> 的状态已更新为 <strong>{{.status}}</strong>。</p>
{{if eq .status "completed"}}<p>退款金额 {{.refund_amount}} 将原路退回。</p>{{end}}`),
	},
}

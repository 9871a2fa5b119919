package email

import (
	"bytes"
	"fmt"
	"html/template"
)

// templateData feeds the mail body templates.
type templateData struct {
	Username  string
	ActionURL string
}

var verifyTemplate = template.Must(template.New("verify").Parse(`<html>
<body>
<p>Hi {{.Username}},</p>
<p>Thanks for signing up. Please confirm your email address:</p>
<p><a href="{{.ActionURL}}">Confirm email</a></p>
<p>If you did not create an account, you can ignore this message.</p>
</body>
</html>`))

var resetTemplate = template.Must(template.New("reset").Parse(`<html>
<body>
<p>Hi {{.Username}},</p>
<p>A password reset was requested for your account. Follow the link to apply
the new password:</p>
<p><a href="{{.ActionURL}}">Reset password</a></p>
<p>If you did not request a reset, you can ignore this message.</p>
</body>
</html>`))

func renderTemplate(tmpl *template.Template, data templateData) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s template: %w", tmpl.Name(), err)
	}
	return buf.String(), nil
}

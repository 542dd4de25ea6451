package mail

import (
	"fmt"
	"regexp"
	"strings"
)

// PurchaseEmailData fills the fulfillment email template.
type PurchaseEmailData struct {
	CustomerName   string
	DownloadURL    string
	WhatsAppNumber string
	MaxDownloads   int
}

// PurchaseEmailSubject is the fixed subject line for fulfillment mails.
const PurchaseEmailSubject = "¡Gracias por tu compra! Tu Método Keto está listo 💚"

var nonDigits = regexp.MustCompile(`[^0-9]`)

// PurchaseEmailHTML renders the fulfillment email embedding the magic link
// and the WhatsApp support contact.
func PurchaseEmailHTML(data PurchaseEmailData) string {
	name := strings.TrimSpace(data.CustomerName)
	if name == "" {
		name = "Cliente"
	}
	whatsappURL := "https://wa.me/" + nonDigits.ReplaceAllString(data.WhatsAppNumber, "")

	var b strings.Builder
	b.WriteString(`<!DOCTYPE html>
<html lang="es">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
  <title>¡Gracias por tu compra!</title>
</head>
<body style="margin: 0; padding: 0; font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, Arial, sans-serif; background-color: #f3f4f6;">
  <table width="100%" cellpadding="0" cellspacing="0" style="background-color: #f3f4f6; padding: 40px 20px;">
    <tr>
      <td align="center">
        <table width="600" cellpadding="0" cellspacing="0" style="background-color: #ffffff; border-radius: 16px; overflow: hidden;">
          <tr>
            <td style="background: linear-gradient(135deg, #10b981 0%, #059669 100%); padding: 30px; text-align: center;">
`)
	fmt.Fprintf(&b, "              <h1 style=\"margin: 0; color: #ffffff; font-size: 28px; font-weight: bold;\">¡Gracias por tu compra, %s!</h1>\n", name)
	b.WriteString(`              <p style="margin: 12px 0 0 0; color: #d1fae5; font-size: 16px;">Tu transformación comienza ahora</p>
            </td>
          </tr>
          <tr>
            <td style="padding: 40px 30px;">
              <p style="margin: 0 0 24px 0; color: #374151; font-size: 16px; line-height: 1.6;">
                Estamos emocionados de acompañarte en tu viaje hacia una vida más saludable.
              </p>
              <div style="background-color: #ecfdf5; border-left: 4px solid #10b981; padding: 20px; margin: 24px 0; border-radius: 8px;">
                <p style="margin: 0; color: #065f46; font-size: 14px; font-weight: 600;">📥 Tu producto está listo para descargar</p>
`)
	fmt.Fprintf(&b, "                <p style=\"margin: 8px 0 0 0; color: #047857; font-size: 14px;\">Tienes <strong>%d descargas disponibles</strong> con este enlace</p>\n", data.MaxDownloads)
	b.WriteString(`              </div>
              <table width="100%" cellpadding="0" cellspacing="0" style="margin: 32px 0;">
                <tr>
                  <td align="center">
`)
	fmt.Fprintf(&b, "                    <a href=\"%s\" style=\"display: inline-block; background: linear-gradient(135deg, #10b981 0%%, #059669 100%%); color: #ffffff; text-decoration: none; padding: 16px 48px; border-radius: 9999px; font-weight: bold; font-size: 18px;\">⬇️ Descargar Mi Método Keto</a>\n", data.DownloadURL)
	b.WriteString(`                  </td>
                </tr>
              </table>
              <div style="text-align: center; margin: 32px 0;">
                <p style="margin: 0 0 16px 0; color: #374151; font-size: 16px; font-weight: 600;">¿Tienes dudas o necesitas soporte?</p>
`)
	fmt.Fprintf(&b, "                <a href=\"%s\" style=\"color: #059669; font-size: 14px;\">Escríbenos por WhatsApp</a>\n", whatsappURL)
	b.WriteString(`              </div>
            </td>
          </tr>
        </table>
      </td>
    </tr>
  </table>
</body>
</html>
`)
	return b.String()
}

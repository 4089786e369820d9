package smtp

import (
	"net/smtp"
	"net/textproto"
)

type smtpServerInfo = smtp.ServerInfo

func errorCode(code int) error {
	return &textproto.Error{Code: code, Msg: "test"}
}

package sip2

import (
	"time"
)

// RawTransportPort is the well-known port of the raw TCP transport, the only
// transport over which login is permitted.
const RawTransportPort = 5300

// LoginCommand is the SIP2 command identifier of the login request.
const LoginCommand = "93"

// LoginParams holds the credentials sent in a login request.
type LoginParams struct {
	Username string
	Password string
	Location string
}

// DefaultLoginParams are the credentials used by the reference test ACS.
var DefaultLoginParams = LoginParams{
	Username: "scclient",
	Password: "clientpwd",
	Location: "The basement",
}

// Body returns the login command body for p.
func (p LoginParams) Body() string {
	return LoginBody(p.Username, p.Password, p.Location)
}

// LoginBody builds the body of a login request:
//
//	"9300CN<username>|CO<password>|CP<location>|"
//
// UID and PWD algorithms are both "0" (not encrypted).
func LoginBody(username, password, location string) string {
	return LoginCommand + "00" +
		"CN" + username + "|" +
		"CO" + password + "|" +
		"CP" + location + "|"
}

// SIPDate formats t as a SIP2 date field, "YYYYMMDD    HHMMSS", in t's location.
func SIPDate(t time.Time) string {
	return t.Format("20060102    150405")
}

package sip2

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoginBody(t *testing.T) {
	assert.Equal(t, "9300CNscclient|COclientpwd|CPThe basement|",
		LoginBody("scclient", "clientpwd", "The basement"))
	assert.Equal(t, "9300CN|CO|CP|", LoginBody("", "", ""))
}

func TestLoginParams_Body(t *testing.T) {
	assert.Equal(t, "9300CNscclient|COclientpwd|CPThe basement|", DefaultLoginParams.Body())

	p := LoginParams{Username: "u", Password: "p", Location: "l"}
	assert.Equal(t, "9300CNu|COp|CPl|", p.Body())
}

func TestSIPDate(t *testing.T) {
	ts := time.Date(2008, time.January, 2, 3, 4, 5, 0, time.UTC)
	assert.Equal(t, "20080102    030405", SIPDate(ts))
	assert.Len(t, SIPDate(time.Now()), 18)
}

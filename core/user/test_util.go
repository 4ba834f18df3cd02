package user

import (
	"github.com/trezcool/alama/core"
)

// MakeResetToken generates a password reset token for usr, as sent in the password reset email.
func MakeResetToken(conf *core.Config, usr User) string {
	return newTokenGenerator(conf).makeToken(usr)
}

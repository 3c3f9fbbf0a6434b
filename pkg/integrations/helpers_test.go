package integrations_test

import (
	"github.com/Gobusters/ectoerror/httperror"
)

func statusOf(err error) int {
	if !httperror.IsHTTPError(err) {
		return 0
	}
	return httperror.GetStatusCode(err)
}

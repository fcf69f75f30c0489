package client

import "errors"

// ErrJournalDisabled is returned by History when the client runs without a
// journal.
var ErrJournalDisabled = errors.New("write journal disabled")

package domain

// OperationHandle is the opaque name the backend assigns to a long-running
// generation job. It never changes once issued.
type OperationHandle string

func (h OperationHandle) String() string { return string(h) }

// GeneratedVideo is a raw asset descriptor reported by a finished operation.
type GeneratedVideo struct {
	GCSURI   string `json:"gcsUri"`
	MimeType string `json:"mimeType"`
}

// OperationError is the error block of a finished operation.
type OperationError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// OperationStatus is the decoded answer of one status query. Exactly one of
// the following holds: Done is false; Done with Error set; Done with Videos;
// Done with neither (an unexpected empty result).
type OperationStatus struct {
	Name   string
	Done   bool
	Videos []GeneratedVideo
	Error  *OperationError
}

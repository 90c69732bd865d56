/*
DESCRIPTION
  request.go provides Request, a capture request submitted to a Session.

AUTHORS
  The camstack developers

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package pipeline

import (
	"time"

	"github.com/ausocean/camstack/buffer"
	"github.com/ausocean/camstack/ipa/metadata"
)

// RequestStatus is the outcome of a Request.
type RequestStatus int

// Request statuses.
const (
	RequestPending RequestStatus = iota
	RequestComplete
	RequestCancelled
)

func (s RequestStatus) String() string {
	switch s {
	case RequestPending:
		return "pending"
	case RequestComplete:
		return "complete"
	case RequestCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Request asks for one frame to be captured into Raw. The session fills in
// the remaining fields before handing the request to the completion
// handler. A Request must not be modified while it is queued.
type Request struct {
	Raw    *buffer.Buffer
	Cookie uint64 // For use by the caller.

	Status    RequestStatus
	Sequence  uint32
	Timestamp time.Time
	Metadata  *metadata.Metadata

	captured  bool
	ispQueued bool
}

// Reuse prepares r to be queued again.
func (r *Request) Reuse() {
	r.Status = RequestPending
	r.Sequence = 0
	r.Timestamp = time.Time{}
	r.Metadata = nil
	r.captured = false
	r.ispQueued = false
}

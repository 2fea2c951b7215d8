package crawlzip

import (
	"github.com/meigma/crawlzip/internal/pathutil"
)

// ftpSession turns one FTP control-plus-data transfer into one archive entry.
// Control channel traffic is only counted.
type ftpSession struct {
	payload
	reused       bool
	controlBytes int
}

func (s *ftpSession) beginControl(req *Request, connectionReused bool) error {
	if req == nil || req.URL == nil {
		return s.violation("ftp request without URL")
	}
	if s.state != stateAwaitingHeaders {
		return s.violation("ftp control begun after transfer started (state %s)", s.state)
	}
	s.name = pathutil.URLEntryName(req.URL)
	s.reused = connectionReused
	return nil
}

func (s *ftpSession) controlData(data []byte) {
	s.controlBytes += len(data)
}

func (s *ftpSession) endControl(resp *Response, connectionClosed bool) {
	args := []any{"entry", s.name, "control_bytes", s.controlBytes, "connection_reused", s.reused, "connection_closed", connectionClosed}
	if resp != nil {
		args = append(args, "reply_code", resp.StatusCode)
	}
	s.rec.logger.Debug("ftp control finished", args...)
}

func (s *ftpSession) preResponse(resp *Response) error {
	if resp == nil {
		return s.violation("nil ftp response")
	}
	if resp.TransferSize < 0 {
		return s.begin(0, false)
	}
	return s.begin(uint64(resp.TransferSize), true)
}

func (s *ftpSession) responseData(data []byte) error {
	return s.write(data)
}

func (s *ftpSession) response(*Response) error {
	return s.finish()
}

package crawlzip

import (
	"context"

	"github.com/meigma/crawlzip/internal/metrics"
)

type sessionKind uint8

const (
	kindUnbound sessionKind = iota
	kindHTTP
	kindFTP
)

func (k sessionKind) String() string {
	switch k {
	case kindHTTP:
		return "http"
	case kindFTP:
		return "ftp"
	default:
		return "unbound"
	}
}

// Session records one exchange. It presents the callbacks of both supported
// protocols and binds to one of them on the first protocol-specific call:
// PreRequest, Request or RequestData bind HTTP; BeginControl binds FTP. The
// binding never changes; callbacks of the other family then return
// ErrContractViolation. The remaining FTP control callbacks never bind: on an
// unbound session EndControl does nothing and the control data callbacks
// return ErrContractViolation.
//
// The response callbacks PreResponse, ResponseData and Response are shared by
// both protocols and require a bound session.
//
// A Session is not safe for concurrent use. Every Session must be closed.
type Session struct {
	rec  *Recorder
	ctx  context.Context
	kind sessionKind
	http *httpSession
	ftp  *ftpSession
}

func (s *Session) bindHTTP() (*httpSession, error) {
	switch s.kind {
	case kindUnbound:
		s.http = &httpSession{payload: newPayload(s.ctx, s.rec, ProtocolHTTP)}
		s.kind = kindHTTP
		return s.http, nil
	case kindHTTP:
		return s.http, nil
	default:
		return nil, s.mismatch("http")
	}
}

func (s *Session) bindFTP() (*ftpSession, error) {
	switch s.kind {
	case kindUnbound:
		s.ftp = &ftpSession{payload: newPayload(s.ctx, s.rec, ProtocolFTP)}
		s.kind = kindFTP
		return s.ftp, nil
	case kindFTP:
		return s.ftp, nil
	default:
		return nil, s.mismatch("ftp")
	}
}

// boundFTP returns the FTP session for a control callback that does not bind.
func (s *Session) boundFTP(callback string) (*ftpSession, error) {
	switch s.kind {
	case kindFTP:
		return s.ftp, nil
	case kindUnbound:
		return nil, s.violation("%s on unbound session", callback)
	default:
		return nil, s.mismatch("ftp")
	}
}

func (s *Session) mismatch(family string) error {
	return s.violation("%s callback on %s session", family, s.kind)
}

func (s *Session) violation(format string, args ...any) error {
	s.rec.metrics.Error(metrics.KindContract)
	return contractError(format, args...)
}

// PreRequest reports the request about to be sent. It names the entry after
// the request target.
func (s *Session) PreRequest(req *Request) error {
	h, err := s.bindHTTP()
	if err != nil {
		return err
	}
	return h.preRequest(req)
}

// Request reports that the request was sent. It has no effect on the archive.
func (s *Session) Request(*Request) error {
	_, err := s.bindHTTP()
	return err
}

// RequestData reports request bytes sent. They are not recorded.
func (s *Session) RequestData([]byte) error {
	_, err := s.bindHTTP()
	return err
}

// BeginControl reports the start of an FTP control conversation for req.
// It names the entry after the request target whether or not the control
// connection was reused.
func (s *Session) BeginControl(req *Request, connectionReused bool) error {
	f, err := s.bindFTP()
	if err != nil {
		return err
	}
	return f.beginControl(req, connectionReused)
}

// RequestControlData reports FTP commands sent. They are not recorded.
func (s *Session) RequestControlData(data []byte) error {
	f, err := s.boundFTP("request control data")
	if err != nil {
		return err
	}
	f.controlData(data)
	return nil
}

// ResponseControlData reports FTP replies received. They are not recorded.
func (s *Session) ResponseControlData(data []byte) error {
	f, err := s.boundFTP("response control data")
	if err != nil {
		return err
	}
	f.controlData(data)
	return nil
}

// EndControl reports the end of the FTP control conversation. It does nothing
// on an unbound session.
func (s *Session) EndControl(resp *Response, connectionClosed bool) error {
	if s.kind == kindUnbound {
		return nil
	}
	f, err := s.boundFTP("end control")
	if err != nil {
		return err
	}
	f.endControl(resp, connectionClosed)
	return nil
}

// PreResponse reports that the response headers (HTTP) or transfer size
// (FTP) are known. A declared size opens the archive entry immediately and
// may block until the archive is free; otherwise the payload is spooled.
func (s *Session) PreResponse(resp *Response) error {
	switch s.kind {
	case kindHTTP:
		return s.http.preResponse(resp)
	case kindFTP:
		return s.ftp.preResponse(resp)
	default:
		return s.violation("response on unbound session")
	}
}

// ResponseData reports response payload bytes. For HTTP, bytes reported
// before PreResponse belong to the headers and are discarded.
func (s *Session) ResponseData(data []byte) error {
	switch s.kind {
	case kindHTTP:
		return s.http.responseData(data)
	case kindFTP:
		return s.ftp.responseData(data)
	default:
		return s.violation("response data on unbound session")
	}
}

// Response reports that the response is complete. A spooled payload is
// written to the archive now.
func (s *Session) Response(resp *Response) error {
	switch s.kind {
	case kindHTTP:
		return s.http.response(resp)
	case kindFTP:
		return s.ftp.response(resp)
	default:
		return s.violation("response on unbound session")
	}
}

// Close ends the exchange. A session that never received a callback does
// nothing. An exchange whose response did not complete is aborted; an entry
// already opened is left as written.
func (s *Session) Close() error {
	switch s.kind {
	case kindHTTP:
		return s.http.close()
	case kindFTP:
		return s.ftp.close()
	default:
		return nil
	}
}

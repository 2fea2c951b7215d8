package crawlzip

import (
	"github.com/meigma/crawlzip/internal/pathutil"
)

// httpSession turns one HTTP exchange into one archive entry.
type httpSession struct {
	payload
}

func (s *httpSession) preRequest(req *Request) error {
	if req == nil || req.URL == nil {
		return s.violation("http request without URL")
	}
	if s.state != stateAwaitingHeaders {
		return s.violation("http request after response started (state %s)", s.state)
	}
	s.name = pathutil.URLEntryName(req.URL)
	return nil
}

func (s *httpSession) preResponse(resp *Response) error {
	if resp == nil {
		return s.violation("nil http response")
	}
	size, known := declaredLength(resp.Header)
	return s.begin(size, known)
}

// responseData discards bytes that arrive before the response headers were
// parsed; transports report header bytes through the same callback.
func (s *httpSession) responseData(data []byte) error {
	if s.err == nil && s.state == stateAwaitingHeaders {
		return nil
	}
	return s.write(data)
}

func (s *httpSession) response(*Response) error {
	return s.finish()
}

// Package crawlzip records the payloads of crawled HTTP and FTP exchanges
// into a single streaming archive, one entry per exchange.
//
// Transport code reports each exchange to a [Session] through protocol
// callbacks. The session names the entry after the request target (host
// followed by the resource path, with "_index" appended to names ending in
// "/"), and writes the response body into the archive:
//
//   - When the response declares its length (HTTP Content-Length or the FTP
//     transfer size), the entry is opened at once and the body streams
//     straight into it.
//   - Otherwise the body is spooled to an anonymous temporary file and the
//     entry is written when the response completes and its length is known.
//
// # Quick Start
//
//	rec, err := crawlzip.Create("crawl.zip", crawlzip.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	defer rec.Close()
//
//	sess := rec.NewSession(ctx)
//	defer sess.Close()
//	req := &crawlzip.Request{URL: u}
//	_ = sess.PreRequest(req)
//	_ = sess.Request(req)
//	_ = sess.PreResponse(&crawlzip.Response{Header: resp.Header})
//	for chunk := range body {
//	    if err := sess.ResponseData(chunk); err != nil {
//	        return err
//	    }
//	}
//	_ = sess.Response(&crawlzip.Response{Header: resp.Header})
//
// # Concurrency
//
// A [Recorder] may be shared by many goroutines, each driving its own
// sessions. Only one entry is written at a time: a session holds the archive
// from the moment its entry starts until its last byte is written, so other
// sessions wait in PreResponse (declared length) or Response (spooled).
//
// # Failures
//
// Archive and spool failures are returned from the callback that triggered
// them and make the session aborted. The entry is left as written; nothing is
// retried and the Recorder remains usable for later exchanges. A declared
// length that disagrees with the body is kept in the entry header and
// reported through logs, metrics and [EntryRecord.SizeMismatch].
package crawlzip

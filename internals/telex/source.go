package telex

import (
	"context"
	"io"
	"net/http"

	"github.com/pkg/errors"
	"github.com/tutuna/telex/internals/multipart"
)

// URLSource downloads url each time the part is rendered, so the upload
// streams straight from the remote server. A non-2xx answer fails the open.
func URLSource(ctx context.Context, doer Doer, url string) multipart.OpenFunc {
	return func() (io.ReadCloser, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, errors.Wrapf(err, "telex: create download request for %s", url)
		}
		resp, err := doer.Do(req)
		if err != nil {
			return nil, errors.Wrapf(err, "telex: download %s", url)
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			resp.Body.Close()
			return nil, errors.Errorf("telex: download %s: bad status %s", url, resp.Status)
		}
		return resp.Body, nil
	}
}

package telemetry

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	report_resty_request  = "resty.request"
	report_resty_response = "resty.response"
	report_resty_status   = "resty.status"
)

type instrumentResty struct {
	tel       API
	idcounter *uint64
}

// InstrumentResty attaches request/response hooks to a resty client that report
// timings through the telemetry API, non-2xx responses are reported as warnings
// with the request headers attached.
func InstrumentResty(client *resty.Client, tel API) {
	var idcounter uint64
	i := instrumentResty{tel: tel, idcounter: &idcounter}

	client.OnBeforeRequest(i.onBeforeRequest)
	client.OnAfterResponse(i.onAfterResponse)
	client.OnError(i.onError)
}

type reqCtxKeyType int

var reqCtxKey reqCtxKeyType

type reqCtx struct {
	id uint64
	// only used for durations, so the wall clock is fine here
	startTime time.Time
}

func (i instrumentResty) onBeforeRequest(_ *resty.Client, req *resty.Request) error {
	id := atomic.AddUint64(i.idcounter, 1)
	ctx := context.WithValue(req.Context(), reqCtxKey, reqCtx{
		id:        id,
		startTime: time.Now(),
	})
	i.tel.ReportDebug(report_resty_request, id, req.Method, req.URL)
	req.SetContext(ctx)
	return nil
}

func (i instrumentResty) requestInfo(req *resty.Request) (reqCtx, time.Duration) {
	info, ok := req.Context().Value(reqCtxKey).(reqCtx)
	if !ok {
		return reqCtx{}, 0
	}
	return info, time.Since(info.startTime)
}

func (i instrumentResty) onAfterResponse(_ *resty.Client, res *resty.Response) error {
	info, duration := i.requestInfo(res.Request)
	i.tel.ReportDebug(
		report_resty_response,
		info.id,
		duration.String(),
		res.Status(),
	)
	if res.IsError() {
		i.tel.ReportWarning(
			report_resty_status,
			fmt.Errorf("%s %s: %s", res.Request.Method, res.Request.URL, res.Status()),
			formatHeaders(res.Request.Header),
		)
	}
	return nil
}

func (i instrumentResty) onError(req *resty.Request, err error) {
	_, duration := i.requestInfo(req)
	i.tel.ReportBroken(
		report_resty_response,
		err,
		req.Method,
		req.URL,
		duration.String(),
	)
}

func formatHeaders(headers http.Header) string {
	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := []string{}
	for _, k := range keys {
		for _, v := range headers[k] {
			lines = append(lines, fmt.Sprintf("%s: %s", k, v))
		}
	}
	return strings.Join(lines, "\n")
}

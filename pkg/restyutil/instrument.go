// Package restyutil traces resty clients and optionally keeps a copy of every exchange.
package restyutil

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

type instrumentCtx struct {
	output Output
	tracer trace.Tracer
}

// shared by every instrumented client so that clients writing to the same output
// never reuse an id
var idcounter atomic.Uint64

type messageIdKeyType int

var messageIdKey messageIdKeyType

// InstrumentClient starts a span for every request made by client. tracer may be nil,
// the global tracer named "resty" is used then. output may be nil, exchanges are then
// only traced.
func InstrumentClient(client *resty.Client, tracer trace.Tracer, output Output) {
	if tracer == nil {
		tracer = otel.Tracer("resty")
	}

	i := instrumentCtx{output: output, tracer: tracer}
	client.OnBeforeRequest(i.onBeforeRequest)
	client.OnAfterResponse(i.onAfterResponse)
	client.OnError(i.onError)
}

func (i instrumentCtx) onBeforeRequest(_ *resty.Client, req *resty.Request) error {
	ctx, _ := i.tracer.Start(
		req.Context(),
		fmt.Sprintf("http %s", req.Method),
		trace.WithSpanKind(trace.SpanKindClient),
	)
	messageId := fmt.Sprintf("%04d", idcounter.Add(1))
	ctx = context.WithValue(ctx, messageIdKey, messageId)
	req.SetContext(ctx)
	return nil
}

func (i instrumentCtx) onAfterResponse(_ *resty.Client, res *resty.Response) error {
	ctx := res.Request.Context()
	span := trace.SpanFromContext(ctx)
	defer span.End()

	span.SetAttributes(
		semconv.HTTPRequestMethodKey.String(res.Request.Method),
		semconv.URLFull(res.Request.URL),
		semconv.HTTPResponseStatusCode(res.StatusCode()),
		semconv.HTTPResponseBodySize(len(res.Body())),
	)
	if res.IsError() {
		span.SetStatus(codes.Error, "HTTP "+strconv.Itoa(res.StatusCode()))
	}

	if i.output == nil {
		return nil
	}
	messageId, ok := ctx.Value(messageIdKey).(string)
	if !ok {
		// the request was created by a middleware registered before this one
		return nil
	}
	i.output.Write(messageId, formatHttpMessage(res), res.Body())
	return nil
}

func (i instrumentCtx) onError(req *resty.Request, err error) {
	span := trace.SpanFromContext(req.Context())
	defer span.End()

	span.SetAttributes(
		semconv.HTTPRequestMethodKey.String(req.Method),
		semconv.URLFull(req.URL),
	)
	span.RecordError(err)
	span.SetStatus(codes.Error, "request failed")
}

package utils

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

type fluentPoster interface {
	Post(tag string, message interface{}) error
}

// FluentHandler forwards slog records to fluentd, tagged "<tag>.<level>".
type FluentHandler struct {
	client fluentPoster
	tag    string
	level  slog.Leveler
	prefix string
	attrs  map[string]interface{}
}

func NewFluentHandler(client fluentPoster, tag string, level slog.Leveler) *FluentHandler {
	return &FluentHandler{
		client: client,
		tag:    tag,
		level:  level,
		attrs:  map[string]interface{}{},
	}
}

func (h *FluentHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *FluentHandler) Handle(_ context.Context, r slog.Record) error {
	data := make(map[string]interface{}, len(h.attrs)+r.NumAttrs()+3)
	for k, v := range h.attrs {
		data[k] = v
	}
	data["msg"] = r.Message
	data["level"] = r.Level.String()
	data["time"] = r.Time.Format(time.RFC3339Nano)
	r.Attrs(func(a slog.Attr) bool {
		flattenAttr(data, h.prefix, a)
		return true
	})
	return h.client.Post(h.tag+"."+strings.ToLower(r.Level.String()), data)
}

func (h *FluentHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := h.clone()
	for _, a := range attrs {
		flattenAttr(next.attrs, h.prefix, a)
	}
	return next
}

func (h *FluentHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := h.clone()
	next.prefix = h.prefix + name + "."
	return next
}

func (h *FluentHandler) clone() *FluentHandler {
	attrs := make(map[string]interface{}, len(h.attrs))
	for k, v := range h.attrs {
		attrs[k] = v
	}
	return &FluentHandler{client: h.client, tag: h.tag, level: h.level, prefix: h.prefix, attrs: attrs}
}

// flattenAttr writes a into data using msgpack-friendly values.
func flattenAttr(data map[string]interface{}, prefix string, a slog.Attr) {
	v := a.Value.Resolve()
	if v.Kind() == slog.KindGroup {
		for _, ga := range v.Group() {
			flattenAttr(data, prefix+a.Key+".", ga)
		}
		return
	}
	if a.Key == "" {
		return
	}
	key := prefix + a.Key
	switch v.Kind() {
	case slog.KindString:
		data[key] = v.String()
	case slog.KindInt64:
		data[key] = v.Int64()
	case slog.KindUint64:
		data[key] = v.Uint64()
	case slog.KindFloat64:
		data[key] = v.Float64()
	case slog.KindBool:
		data[key] = v.Bool()
	case slog.KindDuration:
		data[key] = v.Duration().String()
	case slog.KindTime:
		data[key] = v.Time().Format(time.RFC3339Nano)
	default:
		if err, ok := v.Any().(error); ok {
			data[key] = err.Error()
			return
		}
		data[key] = fmt.Sprint(v.Any())
	}
}

type multiHandler []slog.Handler

// NewMultiHandler fans every record out to all handlers.
func NewMultiHandler(handlers ...slog.Handler) slog.Handler {
	return multiHandler(handlers)
}

func (m multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (m multiHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range m {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make(multiHandler, len(m))
	for i, h := range m {
		next[i] = h.WithAttrs(attrs)
	}
	return next
}

func (m multiHandler) WithGroup(name string) slog.Handler {
	next := make(multiHandler, len(m))
	for i, h := range m {
		next[i] = h.WithGroup(name)
	}
	return next
}

package synckit

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/c0deZ3R0/signsync/bus"
	"github.com/c0deZ3R0/signsync/models"
)

// Query types answered by apps that own sign instances.
const (
	QuerySignsForType       = "getSignsForType"
	QuerySignsWithFieldData = "getSignsWithFieldData"
)

// UsageProvider reports the sign instances a cascade would affect. Each app
// knows its own signs; the Manager only asks.
type UsageProvider interface {
	SignsForType(ctx context.Context, code string) ([]models.SignInstance, error)
	SignsWithFieldData(ctx context.Context, code, field string) ([]models.SignInstance, error)
}

// UsageFuncs adapts plain functions to UsageProvider. Nil functions report no usage.
type UsageFuncs struct {
	ForType       func(ctx context.Context, code string) ([]models.SignInstance, error)
	WithFieldData func(ctx context.Context, code, field string) ([]models.SignInstance, error)
}

func (u UsageFuncs) SignsForType(ctx context.Context, code string) ([]models.SignInstance, error) {
	if u.ForType == nil {
		return nil, nil
	}
	return u.ForType(ctx, code)
}

func (u UsageFuncs) SignsWithFieldData(ctx context.Context, code, field string) ([]models.SignInstance, error) {
	if u.WithFieldData == nil {
		return nil, nil
	}
	return u.WithFieldData(ctx, code, field)
}

type noUsage struct{}

func (noUsage) SignsForType(context.Context, string) ([]models.SignInstance, error) { return nil, nil }
func (noUsage) SignsWithFieldData(context.Context, string, string) ([]models.SignInstance, error) {
	return nil, nil
}

// RequestUsageProvider asks every registered app that answers queries for its
// affected signs and concatenates the answers. Apps replying with an unknown
// query type are skipped; any other failure, including a timeout, fails the
// lookup so a cascade is never confirmed on partial data.
type RequestUsageProvider struct {
	Bus     *bus.Bus
	FromApp string
}

func (p RequestUsageProvider) SignsForType(ctx context.Context, code string) ([]models.SignInstance, error) {
	return p.collect(ctx, bus.Query{Type: QuerySignsForType, Params: map[string]any{"code": code}})
}

func (p RequestUsageProvider) SignsWithFieldData(ctx context.Context, code, field string) ([]models.SignInstance, error) {
	return p.collect(ctx, bus.Query{Type: QuerySignsWithFieldData, Params: map[string]any{"code": code, "field": field}})
}

func (p RequestUsageProvider) collect(ctx context.Context, q bus.Query) ([]models.SignInstance, error) {
	var (
		out  []models.SignInstance
		errs []error
	)
	for _, name := range p.Bus.RegisteredApps() {
		info, ok := p.Bus.App(name)
		if !ok || !info.AnswersQuery {
			continue
		}
		resp := p.Bus.SendRequest(ctx, p.FromApp, name, q)
		if resp.Error == bus.UnknownQuery(q).Error {
			continue
		}
		if err := resp.Err(); err != nil {
			errs = append(errs, err)
			continue
		}
		signs, ok := resp.Data.([]models.SignInstance)
		if !ok && resp.Data != nil {
			errs = append(errs, fmt.Errorf("app %s answered %s with %T", name, q.Type, resp.Data))
			continue
		}
		out = append(out, signs...)
	}
	return out, stderrors.Join(errs...)
}

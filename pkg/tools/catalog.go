package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Asker forwards a question to a human and waits for the answer.
type Asker interface {
	Ask(ctx context.Context, question, callID string) (string, error)
}

const supervisorErrorReply = "I'm sorry, but there was an error contacting my supervisor. Is there anything else I can help you with?"

type catalogEntry struct {
	stock int
	price int
}

func lookupModel(model string) catalogEntry {
	m := strings.ToLower(model)
	switch {
	case strings.Contains(m, "pro"):
		return catalogEntry{stock: 10, price: 249}
	case strings.Contains(m, "max"):
		return catalogEntry{stock: 0, price: 549}
	default:
		return catalogEntry{stock: 100, price: 149}
	}
}

func stringArg(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return v
}

func intArg(args map[string]any, key string) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case json.Number:
		n, _ := v.Int64()
		return int(n)
	}
	return 0
}

func jsonReply(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", errors.Wrap(err, "marshal tool reply")
	}
	return string(b), nil
}

func checkInventory(_ context.Context, args map[string]any) (string, error) {
	return jsonReply(map[string]int{"stock": lookupModel(stringArg(args, "model")).stock})
}

func checkPrice(_ context.Context, args map[string]any) (string, error) {
	return jsonReply(map[string]int{"price": lookupModel(stringArg(args, "model")).price})
}

func placeOrder(_ context.Context, args map[string]any) (string, error) {
	qty := intArg(args, "quantity")
	if qty < 1 {
		return "", errors.New("quantity must be at least 1")
	}
	price := lookupModel(stringArg(args, "model")).price * qty
	order := fmt.Sprintf("%07d", rand.IntN(10_000_000))
	log.Info().Str("component", "tools").Str("order", order).Str("model", stringArg(args, "model")).Int("quantity", qty).Msg("order placed")
	return jsonReply(map[string]any{"orderNumber": order, "price": price})
}

// RegisterCatalog wires the inventory, price, and order tools.
func RegisterCatalog(r *Registry) error {
	for name, fn := range map[string]Func{
		"checkInventory": checkInventory,
		"checkPrice":     checkPrice,
		"placeOrder":     placeOrder,
	} {
		if err := r.Register(name, fn); err != nil {
			return err
		}
	}
	return nil
}

// RegisterAskSupervisor wires the escalation tool. Failures become an
// apology the model relays to the caller.
func RegisterAskSupervisor(r *Registry, asker Asker) error {
	if asker == nil {
		return errors.New("ask supervisor: nil asker")
	}
	return r.Register("askSupervisor", func(ctx context.Context, args map[string]any) (string, error) {
		answer, err := asker.Ask(ctx, stringArg(args, "text"), stringArg(args, "callSid"))
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			log.Error().Err(err).Str("component", "tools").Msg("ask supervisor failed")
			return supervisorErrorReply, nil
		}
		return answer, nil
	})
}

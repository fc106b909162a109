package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Rule prices a validated request in raw credits. res is the resolution the
// request resolved to (the model default when none was given), or nil for
// models without a resolution table.
type Rule func(req Request, res *Resolution) (int64, error)

// PerSecond charges a fixed number of credits per second of output.
func PerSecond(credits int64) Rule {
	return func(req Request, _ *Resolution) (int64, error) {
		return credits * int64(req.DurationSeconds), nil
	}
}

// FlatUSD charges a fixed dollar price per output.
func FlatUSD(usd string) Rule {
	price := decimal.RequireFromString(usd)
	return func(Request, *Resolution) (int64, error) {
		return CreditsFromUSD(price), nil
	}
}

// USDByAudio prices on whether audio was requested.
func USDByAudio(withAudio, withoutAudio string) Rule {
	with, without := decimal.RequireFromString(withAudio), decimal.RequireFromString(withoutAudio)
	return func(req Request, _ *Resolution) (int64, error) {
		if req.Audio {
			return CreditsFromUSD(with), nil
		}
		return CreditsFromUSD(without), nil
	}
}

// USDByDuration prices on clip length in seconds.
func USDByDuration(prices map[int]string) Rule {
	table := make(map[int]decimal.Decimal, len(prices))
	for d, p := range prices {
		table[d] = decimal.RequireFromString(p)
	}
	return func(req Request, _ *Resolution) (int64, error) {
		p, ok := table[req.DurationSeconds]
		if !ok {
			return 0, fmt.Errorf("%w: no price for %ds", ErrUnsupportedParameters, req.DurationSeconds)
		}
		return CreditsFromUSD(p), nil
	}
}

// USDByTier prices on the resolution tier ("720p", "1080p", "4k").
func USDByTier(prices map[string]string) Rule {
	table := parseTable(prices)
	return func(_ Request, res *Resolution) (int64, error) {
		if res == nil {
			return 0, fmt.Errorf("%w: resolution required", ErrUnsupportedParameters)
		}
		p, ok := table[res.Tier]
		if !ok {
			return 0, fmt.Errorf("%w: no price for %s", ErrUnsupportedParameters, res.Tier)
		}
		return CreditsFromUSD(p), nil
	}
}

// USDByTierDuration prices on tier and duration together, keyed "768p-6s".
func USDByTierDuration(prices map[string]string) Rule {
	table := parseTable(prices)
	return func(req Request, res *Resolution) (int64, error) {
		if res == nil {
			return 0, fmt.Errorf("%w: resolution required", ErrUnsupportedParameters)
		}
		key := fmt.Sprintf("%s-%ds", res.Tier, req.DurationSeconds)
		p, ok := table[key]
		if !ok {
			return 0, fmt.Errorf("%w: no price for %s", ErrUnsupportedParameters, key)
		}
		return CreditsFromUSD(p), nil
	}
}

func parseTable(prices map[string]string) map[string]decimal.Decimal {
	table := make(map[string]decimal.Decimal, len(prices))
	for k, p := range prices {
		table[k] = decimal.RequireFromString(p)
	}
	return table
}

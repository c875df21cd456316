package journal

import (
	"bufio"
	"context"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/fintools-ai/mcp-order-flow-server/internal/model"
	"github.com/fintools-ai/mcp-order-flow-server/internal/store"
)

// Replay loads the newest journal file and appends its still-live quotes into
// the store. Used only with the in-memory backend, whose contents do not
// survive a restart. Returns the number of quotes restored.
func Replay(ctx context.Context, dir string, st store.Store, horizonMs int64, log *zap.Logger) (int, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.csv"))
	if err != nil || len(files) == 0 {
		return 0, nil
	}

	// Daily files sort by name.
	sort.Strings(files)
	latest := files[len(files)-1]

	f, err := os.Open(latest)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	reader := csv.NewReader(bufio.NewReaderSize(f, bufSize))
	reader.FieldsPerRecord = -1

	// Header row.
	if _, err := reader.Read(); err != nil {
		return 0, err
	}

	restored := 0
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue // skip malformed rows rather than abandon the replay
		}

		q, ok := parseRow(row)
		if !ok || q.Timestamp < horizonMs {
			continue
		}
		if err := st.AppendQuote(ctx, q); err != nil {
			return restored, err
		}
		restored++
	}

	log.Info("journal replayed",
		zap.String("path", latest), zap.Int("quotes", restored))
	return restored, nil
}

func parseRow(row []string) (model.Quote, bool) {
	if len(row) < 6 {
		return model.Quote{}, false
	}

	ts, err := strconv.ParseInt(strings.TrimSpace(row[0]), 10, 64)
	if err != nil || ts <= 0 {
		return model.Quote{}, false
	}
	bidPrice, err := decimal.NewFromString(strings.TrimSpace(row[2]))
	if err != nil {
		return model.Quote{}, false
	}
	askPrice, err := decimal.NewFromString(strings.TrimSpace(row[3]))
	if err != nil {
		return model.Quote{}, false
	}
	bidSize, err := strconv.ParseInt(strings.TrimSpace(row[4]), 10, 64)
	if err != nil {
		return model.Quote{}, false
	}
	askSize, err := strconv.ParseInt(strings.TrimSpace(row[5]), 10, 64)
	if err != nil {
		return model.Quote{}, false
	}

	return model.Quote{
		Ticker:    strings.ToUpper(strings.TrimSpace(row[1])),
		Timestamp: ts,
		BidPrice:  bidPrice,
		AskPrice:  askPrice,
		BidSize:   bidSize,
		AskSize:   askSize,
	}, true
}

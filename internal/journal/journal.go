// Package journal is the async CSV quote journal. Every ingested quote is
// appended to a daily file so the in-memory store can be rebuilt after a
// restart. Writes never block the ingest path.
package journal

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/fintools-ai/mcp-order-flow-server/internal/model"
)

const (
	chanSize    = 4096
	bufSize     = 1 << 20 // 1 MB
	flushPeriod = 1 * time.Second

	header = "timestamp,ticker,bid_price,ask_price,bid_size,ask_size"
)

// Journal batches quote rows into a daily CSV file named YYYY-MM-DD.csv.
type Journal struct {
	dir string
	log *zap.Logger
	ch  chan model.Quote
}

// New creates the journal and starts its writer goroutine.
func New(dir string, log *zap.Logger) *Journal {
	j := &Journal{
		dir: dir,
		log: log,
		ch:  make(chan model.Quote, chanSize),
	}
	go j.run()
	return j
}

// Record queues a quote for the writer. Drops the quote if the writer is
// backed up; the journal is recovery aid, not a system of record.
func (j *Journal) Record(q model.Quote) {
	select {
	case j.ch <- q:
	default:
	}
}

// Close stops the writer after draining queued quotes.
func (j *Journal) Close() {
	close(j.ch)
}

func (j *Journal) run() {
	if err := os.MkdirAll(j.dir, 0o755); err != nil {
		j.log.Error("journal dir create failed", zap.String("dir", j.dir), zap.Error(err))
		return
	}

	var (
		currentDay string
		file       *os.File
		writer     *bufio.Writer
	)

	flush := time.NewTicker(flushPeriod)
	defer flush.Stop()

	openFile := func(day string) {
		if file != nil {
			writer.Flush()
			file.Close()
		}

		path := filepath.Join(j.dir, day+".csv")
		var err error
		file, err = os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			j.log.Error("journal open failed", zap.String("path", path), zap.Error(err))
			writer = nil
			return
		}

		writer = bufio.NewWriterSize(file, bufSize)
		if info, _ := file.Stat(); info != nil && info.Size() == 0 {
			fmt.Fprintln(writer, header)
		}

		currentDay = day
		j.log.Info("journal rotated", zap.String("path", path))
	}

	for {
		select {
		case q, ok := <-j.ch:
			if !ok {
				if writer != nil {
					writer.Flush()
				}
				if file != nil {
					file.Close()
				}
				return
			}

			day := time.UnixMilli(q.Timestamp).UTC().Format("2006-01-02")
			if day != currentDay {
				openFile(day)
			}
			if writer == nil {
				continue
			}

			fmt.Fprintf(writer, "%d,%s,%s,%s,%d,%d\n",
				q.Timestamp, q.Ticker,
				q.BidPrice.String(), q.AskPrice.String(),
				q.BidSize, q.AskSize)

		case <-flush.C:
			if writer != nil {
				writer.Flush()
			}
		}
	}
}

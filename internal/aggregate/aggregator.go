package aggregate

import (
	"errors"
	"fmt"
	"time"

	"github.com/lox/marinestream/internal/models"
)

// ErrOutOfOrder is returned by Append when a record is older than the
// previously appended one. Input must be sorted by time.
var ErrOutOfOrder = errors.New("record out of time order")

// Options configures an Aggregator.
type Options struct {
	Granularity Granularity
	TimeField   string
	// GroupField partitions a time bucket into one summary per value. Empty
	// disables grouping.
	GroupField string
	// IdentityFields keep their first value per bucket-group instead of
	// being aggregated. Defaults to latitude and longitude.
	IdentityFields []string
}

// Aggregator compresses a time-ordered record stream into one summary record
// per bucket-group. All open groups close together when a record falls into
// a new time bucket, regardless of its group.
type Aggregator struct {
	opts     Options
	identity map[string]bool
	emit     func(models.Record) error

	epoch time.Time
	open  bool
	last  time.Time
	seen  bool

	buckets map[groupKey]*bucket
	order   []*bucket
}

// groupKey distinguishes group values by type so json.Number("1") and "1"
// stay apart.
type groupKey struct {
	present bool
	kind    string
	value   string
}

func New(opts Options, emit func(models.Record) error) *Aggregator {
	if opts.IdentityFields == nil {
		opts.IdentityFields = []string{"latitude", "longitude"}
	}
	identity := make(map[string]bool, len(opts.IdentityFields))
	for _, f := range opts.IdentityFields {
		identity[f] = true
	}
	return &Aggregator{
		opts:     opts,
		identity: identity,
		emit:     emit,
		buckets:  make(map[groupKey]*bucket),
	}
}

// Append adds rec to its bucket-group, flushing every open group first when
// rec starts a new time bucket.
func (a *Aggregator) Append(rec models.Record) error {
	ts, err := rec.Time(a.opts.TimeField)
	if err != nil {
		return fmt.Errorf("aggregate: %w", err)
	}
	if a.seen && ts.Before(a.last) {
		return fmt.Errorf("%w: %s after %s", ErrOutOfOrder, models.FormatTime(ts), models.FormatTime(a.last))
	}
	a.last, a.seen = ts, true

	epoch := a.opts.Granularity.Truncate(ts)
	if a.open && !epoch.Equal(a.epoch) {
		if err := a.Flush(); err != nil {
			return err
		}
	}
	a.epoch, a.open = epoch, true

	a.bucketFor(rec).add(rec, ts, a.opts.TimeField, a.opts.GroupField, a.identity)
	return nil
}

// Flush emits one summary per open bucket-group in the order the groups
// were opened and leaves the aggregator empty.
func (a *Aggregator) Flush() error {
	order := a.order
	a.order = nil
	a.buckets = make(map[groupKey]*bucket)
	a.open = false

	for _, b := range order {
		if err := a.emit(b.summary(a.opts.TimeField, a.opts.GroupField)); err != nil {
			return err
		}
	}
	return nil
}

func (a *Aggregator) bucketFor(rec models.Record) *bucket {
	var key groupKey
	var group any
	if a.opts.GroupField != "" {
		if v, ok := rec.Get(a.opts.GroupField); ok && v != nil {
			key = groupKey{present: true, kind: fmt.Sprintf("%T", v), value: models.Text(v)}
			group = v
		}
	}
	b, ok := a.buckets[key]
	if !ok {
		b = &bucket{
			group:    group,
			stats:    make(map[string]*stat),
			excluded: make(map[string]bool),
			ids:      make(map[string]any),
		}
		a.buckets[key] = b
		a.order = append(a.order, b)
	}
	return b
}

type bucket struct {
	group any
	count int

	timeMin, timeMax       time.Time
	timeMinRaw, timeMaxRaw any

	idOrder []string
	ids     map[string]any

	statOrder []*stat
	stats     map[string]*stat
	// excluded fields had a non-numeric first value in this bucket-group.
	excluded map[string]bool
}

type stat struct {
	name     string
	sum      float64
	count    int
	min, max float64
	minValue any
	maxValue any
	minAt    any
	maxAt    any
}

func (b *bucket) add(rec models.Record, ts time.Time, timeField, groupField string, identity map[string]bool) {
	raw, _ := rec.Get(timeField)
	if b.count == 0 || ts.Before(b.timeMin) {
		b.timeMin, b.timeMinRaw = ts, raw
	}
	if b.count == 0 || ts.After(b.timeMax) {
		b.timeMax, b.timeMaxRaw = ts, raw
	}
	b.count++

	for _, name := range rec.Names() {
		if name == timeField || name == groupField {
			continue
		}
		v, _ := rec.Get(name)
		if identity[name] {
			if _, ok := b.ids[name]; !ok {
				b.ids[name] = v
				b.idOrder = append(b.idOrder, name)
			}
			continue
		}
		if b.excluded[name] {
			continue
		}
		f, numeric := models.Float(v)
		st, ok := b.stats[name]
		if !ok {
			if !numeric {
				b.excluded[name] = true
				continue
			}
			st = &stat{name: name, min: f, max: f, minValue: v, maxValue: v, minAt: raw, maxAt: raw}
			b.stats[name] = st
			b.statOrder = append(b.statOrder, st)
		} else if !numeric {
			continue
		}
		st.add(f, v, raw)
	}
}

func (s *stat) add(f float64, v, at any) {
	s.sum += f
	s.count++
	if f < s.min {
		s.min, s.minValue, s.minAt = f, v, at
	}
	if f > s.max {
		s.max, s.maxValue, s.maxAt = f, v, at
	}
}

func (b *bucket) summary(timeField, groupField string) models.Record {
	names := []string{timeField + "_min", timeField + "_max"}
	values := []any{b.timeMinRaw, b.timeMaxRaw}
	if groupField != "" {
		names = append(names, groupField)
		values = append(values, b.group)
	}
	for _, name := range b.idOrder {
		names = append(names, name)
		values = append(values, b.ids[name])
	}
	for _, st := range b.statOrder {
		names = append(names,
			st.name+"_mean",
			st.name+"_min", st.name+"_min_"+timeField,
			st.name+"_max", st.name+"_max_"+timeField,
		)
		values = append(values,
			st.sum/float64(st.count),
			st.minValue, st.minAt,
			st.maxValue, st.maxAt,
		)
	}
	return models.NewRecord(names, values)
}

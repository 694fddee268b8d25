// Package publish mirrors zone readings into a redis hash, one field per
// value, the way platform daemons publish sensor state.
package publish

import (
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/garyburd/redigo/redis"
	"github.com/itohio/gotsc/pkg/zone"
	"github.com/platinasystems/log"
)

const (
	// DefaultHash is the hash fields are written to.
	DefaultHash = "platina"
	// Timeout bounds connects, reads and writes.
	Timeout = 500 * time.Millisecond
)

// Publisher writes zone readings with HSET. Unchanged fields are not
// written again.
type Publisher struct {
	pool *redis.Pool
	hash string

	mu   sync.Mutex
	last map[string]string
}

// New creates a publisher with its own connection pool.
func New(dial func() (redis.Conn, error), hash string) *Publisher {
	if hash == "" {
		hash = DefaultHash
	}
	return &Publisher{
		pool: &redis.Pool{
			Dial:        dial,
			MaxIdle:     1,
			IdleTimeout: time.Minute,
		},
		hash: hash,
		last: make(map[string]string),
	}
}

// Dial creates a publisher for the redis server at addr. Connections are
// made lazily.
func Dial(addr, hash string) *Publisher {
	return New(func() (redis.Conn, error) {
		conn, err := net.DialTimeout("tcp", addr, Timeout)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
		}
		return redis.NewConn(conn, Timeout, Timeout), nil
	}, hash)
}

// Field returns the hash field of a zone value.
func Field(zoneName, name string) string {
	return zoneName + "." + name
}

// Fields renders a reading into hash fields.
func Fields(r zone.Reading) map[string]string {
	fields := make(map[string]string, 2)
	if r.Err != nil {
		fields[Field(r.Name, "error")] = r.Err.Error()
		return fields
	}

	fields[Field(r.Name, "temp.units.C")] = fmt.Sprintf("%.2f", float64(r.Millicelsius)/1000)
	fields[Field(r.Name, "error")] = ""

	names := make([]string, len(r.Crossed))
	for i, t := range r.Crossed {
		names[i] = t.Name
	}
	fields[Field(r.Name, "trip")] = strings.Join(names, ",")
	return fields
}

// Publish writes the changed fields of r.
func (p *Publisher) Publish(r zone.Reading) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var changed []string
	fields := Fields(r)
	for k, v := range fields {
		if last, ok := p.last[k]; !ok || last != v {
			changed = append(changed, k)
		}
	}
	if len(changed) == 0 {
		return nil
	}

	conn := p.pool.Get()
	defer conn.Close()

	for _, k := range changed {
		if _, err := conn.Do("HSET", p.hash, k, fields[k]); err != nil {
			return fmt.Errorf("failed to publish %s: %w", k, err)
		}
		p.last[k] = fields[k]
	}
	return nil
}

// Hook returns a zone callback publishing every reading. Failures are
// logged and do not stop later readings.
func (p *Publisher) Hook() func(zone.Reading) {
	return func(r zone.Reading) {
		if err := p.Publish(r); err != nil {
			log.Print("warning: publish: ", err)
		}
	}
}

// Close releases pooled connections.
func (p *Publisher) Close() error {
	return p.pool.Close()
}

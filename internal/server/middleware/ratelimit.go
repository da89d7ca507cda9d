package middleware

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"serotonyl.ru/referral-ledger/internal/common"
)

// RateLimiter ограничивает количество запросов на клиента.
// Использует алгоритм скользящего окна.
type RateLimiter struct {
	mu       sync.Mutex
	requests map[string][]time.Time
	limit    int
	window   time.Duration
	trusted  []netip.Prefix // прокси, которым верим X-Forwarded-For

	stopOnce sync.Once
	stopCh   chan struct{}
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	rl := &RateLimiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
		stopCh:   make(chan struct{}),
	}
	go rl.cleanup()
	return rl
}

// Close останавливает фоновую горутину очистки.
// Его надо вызывать на shutdown (иначе cleanup будет жить вечно).
func (rl *RateLimiter) Close() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

// TrustProxies задаёт адреса (IP или CIDR) обратных прокси. Только для
// запросов от них ключом берётся адрес клиента из X-Forwarded-For.
func (rl *RateLimiter) TrustProxies(proxies []string) error {
	trusted := make([]netip.Prefix, 0, len(proxies))
	for _, p := range proxies {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if !strings.Contains(p, "/") {
			addr, err := netip.ParseAddr(p)
			if err != nil {
				return fmt.Errorf("некорректный адрес прокси %q: %w", p, err)
			}
			trusted = append(trusted, netip.PrefixFrom(addr.Unmap(), addr.Unmap().BitLen()))
			continue
		}
		prefix, err := netip.ParsePrefix(p)
		if err != nil {
			return fmt.Errorf("некорректная подсеть прокси %q: %w", p, err)
		}
		trusted = append(trusted, prefix.Masked())
	}

	rl.mu.Lock()
	rl.trusted = trusted
	rl.mu.Unlock()
	return nil
}

// Allow учитывает запрос клиента key и сообщает, укладывается ли он в лимит.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	recent := rl.prune(rl.requests[key], now.Add(-rl.window))

	if len(recent) >= rl.limit {
		rl.requests[key] = recent
		return false
	}

	rl.requests[key] = append(recent, now)
	return true
}

// Middleware отвечает 429, если клиент превысил лимит. Ключ — IP клиента.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rl.mu.Lock()
		trusted := rl.trusted
		rl.mu.Unlock()

		if !rl.Allow(clientIP(r, trusted)) {
			w.Header().Set("Retry-After", strconv.Itoa(int(rl.window.Seconds())))
			common.WriteJSON(w, http.StatusTooManyRequests, common.ErrorResponse{Error: "too many requests"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) prune(times []time.Time, cutoff time.Time) []time.Time {
	var recent []time.Time
	for _, t := range times {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}
	return recent
}

func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stopCh:
			return
		case <-ticker.C:
			rl.mu.Lock()
			cutoff := time.Now().Add(-rl.window)
			for key, times := range rl.requests {
				if recent := rl.prune(times, cutoff); len(recent) == 0 {
					delete(rl.requests, key)
				} else {
					rl.requests[key] = recent
				}
			}
			rl.mu.Unlock()
		}
	}
}

// remoteHost — адрес TCP-соединения без порта.
func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// clientIP — адрес соединения. Если соединение пришло от доверенного прокси,
// X-Forwarded-For читается справа налево до первого недоверенного адреса:
// левые значения заголовка клиент может подставить сам.
func clientIP(r *http.Request, trusted []netip.Prefix) string {
	host := remoteHost(r)
	if len(trusted) == 0 || !isTrusted(host, trusted) {
		return host
	}

	hops := strings.Split(r.Header.Get("X-Forwarded-For"), ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		if hop == "" {
			continue
		}
		if _, err := netip.ParseAddr(hop); err != nil {
			return host
		}
		if !isTrusted(hop, trusted) {
			return hop
		}
	}
	return host
}

func isTrusted(ip string, trusted []netip.Prefix) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

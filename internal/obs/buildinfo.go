package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	buildInfoOnce sync.Once

	// buildInfo — gauge со статич. значением 1 и метками версии/коммита.
	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "build_info",
			Help: "Vedarc API build information.",
		},
		[]string{"version", "commit"},
	)
)

// InitBuildInfo регистрирует метрику build_info (однократно) и устанавливает значение.
func InitBuildInfo(version, commit string) {
	buildInfoOnce.Do(func() {
		prometheus.MustRegister(buildInfo)
	})
	buildInfo.WithLabelValues(version, commit).Set(1)
}

var (
	readyOnce sync.Once

	// ready: 1, если зависимости (БД, Redis) отвечают на последней проверке.
	ready = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "service_ready",
		Help: "Whether the last readiness check succeeded.",
	})
)

// SetReady публикует результат проверки готовности.
func SetReady(ok bool) {
	readyOnce.Do(func() {
		prometheus.MustRegister(ready)
	})
	if ok {
		ready.Set(1)
		return
	}
	ready.Set(0)
}

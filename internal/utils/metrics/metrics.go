// internal/utils/metrics/metrics.go
package metrics

import (
	"time"

	"github.com/shopspring/decimal"
)

// RecordClaim записывает переход claim-флоу. stage – quote или confirm.
func (c *Collector) RecordClaim(stage, outcome string) {
	c.claims.WithLabelValues(stage, outcome).Inc()
}

// RecordClaimedAmount увеличивает сумму выведенного.
func (c *Collector) RecordClaimedAmount(amount decimal.Decimal) {
	c.claimedSOL.Add(amount.InexactFloat64())
}

// RecordDeployment записывает результат деплоя. mode – custodial, direct, owner
// или unknown, если запрос отклонён до выбора пути.
func (c *Collector) RecordDeployment(mode, outcome string) {
	c.deployments.WithLabelValues(mode, outcome).Inc()
}

// RecordReconciliation учитывает новое расхождение леджера.
func (c *Collector) RecordReconciliation(kind string) {
	c.reconciliations.WithLabelValues(kind).Inc()
}

// SetCustodyBalance обновляет последний наблюдаемый баланс кастодиального кошелька.
func (c *Collector) SetCustodyBalance(balance decimal.Decimal) {
	c.custodyBalance.Set(balance.InexactFloat64())
}

// RecordHTTPRequest записывает длительность HTTP-запроса.
func (c *Collector) RecordHTTPRequest(route, method, status string, duration time.Duration) {
	c.httpDuration.WithLabelValues(route, method, status).Observe(duration.Seconds())
}

// Package admission — реплицированный token-bucket лимитер, ворота
// перед приёмом событий триггеров.
//
// Состояние реплицируется между stateless-узлами через anti-entropy
// gossip (рассылка Snapshot по MQ, слияние Merge). Сходимость
// eventual: кратковременный partition может дать временный
// over-admission — это принятый компромисс, не ошибка корректности.
package admission

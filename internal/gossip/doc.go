// Package gossip реплицирует записи admission-лимитера между узлами
// через fanout-обменник RabbitMQ.
//
// Репликация — anti-entropy: узел периодически рассылает полный снимок
// собственных записей, остальные вливают его last-writer-wins слиянием.
// Доставка best-effort, очереди узлов эксклюзивные и транзиентные.
package gossip

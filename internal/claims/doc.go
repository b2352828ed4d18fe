// Package claims — серверная сторона протокола воркера: очередь claim,
// жизненный цикл runs и steps, продвижение DAG и redaction логов.
//
// Queue — единственный писатель состояния runs. Сообщения по одному run
// линеаризуются; дубликаты (повторная доставка) распознаются и не меняют
// состояние. Состояние активного run живёт в памяти и восстанавливается
// из хранилища после рестарта процесса.
package claims

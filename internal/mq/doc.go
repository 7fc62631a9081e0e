// Package mq предоставляет инфраструктуру для работы с RabbitMQ.
//
// Структура:
//   - connection.go — соединение с RabbitMQ (reconnect, graceful shutdown)
//   - topology.go   — объявление exchanges, queues, bindings
//   - publisher.go  — публикация сообщений
//   - consumer.go   — потребление сообщений из очередей
//   - events.go     — события развёртывания для оркестратора
//
// Типы сообщений:
//   - deploy.requested — запрос на развёртывание (switchover trigger → агент)
//   - deploy.started   — run начался, слоты выбраны
//   - deploy.phase     — фаза завершилась (успешно или с ошибкой)
//   - deploy.finished  — run завершился
//
// Exchanges:
//   - switchover.requests — запросы агенту
//   - switchover.events   — события развёртываний
//   - switchover.dlq      — dead letter queue
package mq

// Package statestore хранит запись состояния развёртывания.
//
// Структура:
//   - record.go — Record: compare-and-swap поверх сырых байт записи
//   - file.go   — FileRecord: файл на диске, запись через temp-файл и rename
//   - codec.go  — детерминированная сериализация DeploymentState в YAML
//   - store.go  — Store: снимок состояния одного run (Get/Set/Flush)
//
// Блокировок нет. Store обнаруживает параллельного писателя, сравнивая
// содержимое записи с тем, что видел последним, и не предотвращает его.
package statestore

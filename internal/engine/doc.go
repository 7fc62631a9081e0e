// Package engine читает план развёртывания.
//
// Включает:
//   - parser.go   — разбор документа плана (YAML/JSON) в domain.Plan
//   - validate.go — проверка полноты плана и формы шагов
//
// Форма шага (строка, список аргументов, неизвестная) определяется один раз
// при загрузке; дальше код работает с domain.StepKind.
package engine

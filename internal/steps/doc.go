// Package steps выполняет шаги фаз развёртывания.
//
// # Обзор
//
// Шаг — это запуск одной внешней команды. Вариант шага уже определён при
// загрузке плана (domain.StepKind), здесь он только используется для выбора
// исполнителя:
//
//   - StepKindShell — строка передаётся интерпретатору: /bin/sh -c "<command>"
//   - StepKindArgv  — список аргументов запускается напрямую
//   - StepKindInvalid — исполнителя нет, шаг отклоняется с engine.ErrUnknownStep
//
// # Registry
//
// Registry — фабрика исполнителей по варианту шага:
//
//	registry := steps.DefaultRegistry("/bin/sh")  // shell, argv
//	executor, err := registry.Get(domain.StepKindShell)
//
// # Runner
//
// Runner выполняет фазу: шаги по порядку, по одному процессу за раз,
// остановка на первой ошибке. Ненулевой код выхода превращается в
// *CommandError (команда, код выхода, pid). Таймаутов нет: Runner ждёт
// завершения процесса; прервать его может только отмена ctx вызывающим.
//
// Каждая команда получает окружение родителя и переменные
// SWITCHOVER_SLOT, SWITCHOVER_PHASE, SWITCHOVER_RUN_ID.
package steps

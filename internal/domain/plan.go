package domain

import "strings"

// StepKind — вариант шага, определяется один раз при загрузке плана.
type StepKind string

const (
	// StepKindShell — строка, передаваемая командному интерпретатору.
	StepKindShell StepKind = "shell"

	// StepKindArgv — список аргументов, запускаемый напрямую, без интерпретатора.
	StepKindArgv StepKind = "argv"

	// StepKindInvalid — шаг неизвестной формы. Не выполняется никогда.
	StepKindInvalid StepKind = "invalid"
)

// Step — один шаг фазы, за которым стоит запуск внешней команды.
type Step struct {
	// Kind — вариант шага.
	Kind StepKind

	// Command — текст команды (только для StepKindShell).
	Command string

	// Argv — аргументы команды (только для StepKindArgv).
	Argv []string

	// Raw — исходное описание шага, для диагностики StepKindInvalid.
	Raw string
}

// ShellStep создаёт шаг ShellCommandLine.
func ShellStep(command string) Step {
	return Step{Kind: StepKindShell, Command: command}
}

// ArgvStep создаёт шаг ShellCommandArgv.
func ArgvStep(argv ...string) Step {
	return Step{Kind: StepKindArgv, Argv: argv}
}

// InvalidStep создаёт шаг, который будет отклонён до выполнения.
func InvalidStep(raw string) Step {
	return Step{Kind: StepKindInvalid, Raw: raw}
}

// String возвращает команду в читаемом виде (для логов и ошибок).
func (s Step) String() string {
	switch s.Kind {
	case StepKindShell:
		return s.Command
	case StepKindArgv:
		return strings.Join(s.Argv, " ")
	default:
		return s.Raw
	}
}

// SlotPlan — фазы одного слота: фаза → упорядоченный список шагов.
type SlotPlan map[Phase][]Step

// Plan — неизменяемый план развёртывания, загружается один раз за run.
type Plan struct {
	// Source — путь к документу плана (пусто, если план создан в коде).
	Source string

	// Slots — фазы для каждого слота.
	Slots map[Slot]SlotPlan

	// StateFile — путь к записи состояния, уже разрешённый относительно плана.
	StateFile string
}

// Steps возвращает шаги фазы слота. Отсутствующая фаза — nil.
func (p *Plan) Steps(slot Slot, phase Phase) []Step {
	if p == nil || p.Slots == nil {
		return nil
	}
	return p.Slots[slot][phase]
}

package edge

// Arbiter — выбор источника фронтов (аналог primary → secondary):
// фронт менее приоритетного источника отбрасывается, пока более приоритетный
// источник выдавал фронт не раньше holdoff тиков назад. Так резервный секундный
// тик навигации не считается дважды при живом PPS.
// Методы вызываются из контекста прерывания или под irq.Critical.
type Arbiter struct {
	holdoff uint64
	seen    [numKinds]bool
	last    [numKinds]uint64
}

// NewArbiter создаёт арбитр с окном holdoff тиков.
func NewArbiter(holdoff uint64) *Arbiter {
	return &Arbiter{holdoff: holdoff}
}

// SetHoldoff меняет окно (обычно — порог устаревания опоры).
func (a *Arbiter) SetHoldoff(holdoff uint64) {
	a.holdoff = holdoff
}

// Admit решает, принимать ли фронт источника k, пришедший в широкий тик at.
// Принятый или нет, фронт отмечается как признак жизни источника.
func (a *Arbiter) Admit(k Kind, at uint64) bool {
	if k < 0 || k >= numKinds {
		return false
	}
	admit := true
	for better := Kind(0); better < k; better++ {
		if a.live(better, at) {
			admit = false
			break
		}
	}
	a.seen[k] = true
	a.last[k] = at
	return admit
}

// Active возвращает самый приоритетный живой источник на момент at.
func (a *Arbiter) Active(at uint64) (Kind, bool) {
	for k := Kind(0); k < numKinds; k++ {
		if a.live(k, at) {
			return k, true
		}
	}
	return 0, false
}

// Reset забывает все источники.
func (a *Arbiter) Reset() {
	a.seen = [numKinds]bool{}
	a.last = [numKinds]uint64{}
}

func (a *Arbiter) live(k Kind, at uint64) bool {
	if !a.seen[k] {
		return false
	}
	if at < a.last[k] {
		return true
	}
	return at-a.last[k] <= a.holdoff
}

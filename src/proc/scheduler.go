package proc

import (
	"reflect"
	"sync"

	"cpu"
	"trap"
	"util"
	"vm"
)

// Preemption-interval bounds for time_slice_ms = clamp(1000/queue_len,
// MIN, MAX) (spec.md §4.F/G step 6). The source leaves MIN/MAX
// unspecified; 1ms keeps a saturated queue responsive, 100ms keeps a
// near-empty one from busy-spinning the timer (DESIGN.md Open Questions).
const (
	minTimeSliceMs = 1
	maxTimeSliceMs = 100
)

// currentLocalsFn indirects cpu.Current, the same hosted-test seam trap
// uses, so Scheduler.Tick can run against a stubbed Locals block.
var currentLocalsFn = cpu.Current

// idleLoop is implemented in idle_amd64.s.
func idleLoop()

func idleEntry() uintptr {
	return reflect.ValueOf(idleLoop).Pointer()
}

/// Scheduler is the per-CPU FIFO task queue (spec.md §4.F/G). It is
/// owned by exactly one hardware thread, and its own queue is not
/// locked. Cross-CPU task handoff goes through the global inbox instead,
/// whose mutex every dispatch (including Tick's) takes once to drain it.
type Scheduler struct {
	hwthreadID int
	queue      []*Task
	current    *Task
	idle       *Task
	loadedAS   *vm.AddressSpace
}

/// NewScheduler builds a scheduler for hwthreadID with a dedicated idle
/// task parked on idleStack, running in kernelAS (spec.md §4.F/G
/// "installs the idle task (loops hlt on the per-CPU idle stack)").
func NewScheduler(hwthreadID int, idleStack []byte, kernelAS *vm.AddressSpace) *Scheduler {
	return &Scheduler{
		hwthreadID: hwthreadID,
		idle:       NewTask(0, idleEntry(), idleStack, kernelAS, 0, false, 0),
		loadedAS:   nil,
	}
}

/// QueueTask appends t to this scheduler's local queue. Safe to call
/// only from the owning hardware thread (the hot-path queue carries no
/// lock, per spec.md §5 "Per-CPU isolation").
func (s *Scheduler) QueueTask(t *Task) {
	s.queue = append(s.queue, t)
}

/// CurrentAddressSpace returns the address space of the task presently
/// dispatched on this CPU, or nil if none is (before the first tick).
/// The syscall entry's pointer-validation step reads this to resolve
/// userland arguments (spec.md §6 "Arguments that are pointers must be
/// validated against the current task's address space").
func (s *Scheduler) CurrentAddressSpace() *vm.AddressSpace {
	if s.current == nil {
		return nil
	}
	return s.current.AS
}

var inbox = struct {
	mu      sync.Mutex
	pending map[int][]*Task
}{pending: map[int][]*Task{}}

/// QueueTaskCrossCPU hands t to hwthreadID's scheduler via the global
/// mutex-guarded inbox, drained at the head of that CPU's next dispatch
/// (spec.md §5 "cross-CPU queue_task uses a single global mutex-guarded
/// inbox").
func QueueTaskCrossCPU(hwthreadID int, t *Task) {
	inbox.mu.Lock()
	defer inbox.mu.Unlock()
	inbox.pending[hwthreadID] = append(inbox.pending[hwthreadID], t)
}

func (s *Scheduler) drainInbox() {
	inbox.mu.Lock()
	pending := inbox.pending[s.hwthreadID]
	delete(inbox.pending, s.hwthreadID)
	inbox.mu.Unlock()
	s.queue = append(s.queue, pending...)
}

func (s *Scheduler) currentFrameAndGPRs() (*trap.Frame, *trap.GPRs) {
	l := currentLocalsFn()
	return (*trap.Frame)(l.CurrentFrame), (*trap.GPRs)(l.CurrentGPRs)
}

// dispatchNext implements steps 3-6 of spec.md §4.F/G's tick algorithm:
// pop the next runnable task (or install idle), rewrite the live
// interrupt frame/GPRs from it, swap CR3 if its address space changed,
// and program the next preemption.
func (s *Scheduler) dispatchNext(frame *trap.Frame, gprs *trap.GPRs) {
	s.drainInbox()

	var next *Task
	if len(s.queue) > 0 {
		next, s.queue = s.queue[0], s.queue[1:]
	} else {
		next = s.idle
	}

	*frame = next.Frame
	*gprs = next.GPRs

	if next.AS != s.loadedAS {
		next.AS.SwapInto()
		s.loadedAS = next.AS
	}
	s.current = next

	queueLen := len(s.queue)
	if queueLen == 0 {
		queueLen = 1
	}
	sliceMs := util.Min(1000/queueLen, maxTimeSliceMs)
	if sliceMs < minTimeSliceMs {
		sliceMs = minTimeSliceMs
	}
	if timer := currentLocalsFn().Timer; timer != nil {
		timer.SetNextWait(uint64(sliceMs))
	}
}

/// Tick implements cpu.Scheduler: the full six-step preemptive dispatch
/// (spec.md §4.F/G), driven by the timer IRQ. It saves the outgoing
/// task's context, requeues it, and dispatches the next one.
func (s *Scheduler) Tick() {
	frame, gprs := s.currentFrameAndGPRs()
	if s.current != nil && s.current != s.idle {
		s.current.Frame = *frame
		s.current.GPRs = *gprs
		s.queue = append(s.queue, s.current)
	}
	s.dispatchNext(frame, gprs)
}

/// Yield performs the same six steps as Tick immediately, for the
/// `yield` system call (spec.md §4.F/G "Yield and exit").
func (s *Scheduler) Yield() {
	s.Tick()
}

/// Exit performs steps 3-6 only, dropping the outgoing task rather than
/// requeueing it: its address space's intermediate tables are freed,
/// its registered leaf frames are freed, and its stack reference is
/// dropped (spec.md §4.F/G "Yield and exit").
func (s *Scheduler) Exit() {
	frame, gprs := s.currentFrameAndGPRs()
	outgoing := s.current
	s.dispatchNext(frame, gprs)

	if outgoing == nil || outgoing == s.idle {
		return
	}
	for _, f := range outgoing.OwnedFrames {
		outgoing.AS.FreeFrame(f)
	}
	outgoing.AS.Destroy()
	outgoing.Stack = nil
}

var _ cpu.Scheduler = (*Scheduler)(nil)

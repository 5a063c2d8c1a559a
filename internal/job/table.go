package job

// Table is the JobTable: a registry of jobs and their processes, a
// pid-to-job index, and background-job bookkeeping.
type Table struct {
	jobs       map[int]*Job
	pidToJob   map[int]int
	background map[int]bool
	order      []int // job ids in creation order, for stable jobs listing
	nextID     int
	current    int // job id, 0 means none
}

// NewTable creates an empty JobTable.
func NewTable() *Table {
	return &Table{
		jobs:       map[int]*Job{},
		pidToJob:   map[int]int{},
		background: map[int]bool{},
	}
}

func (t *Table) allocateID() int {
	if len(t.jobs) == 0 {
		t.nextID = 1
	}
	id := t.nextID
	t.nextID++
	return id
}

// CreateJob assigns the next job id, inserts pid-to-job entries for any
// process already bound to a real pid, marks it background if requested,
// and makes it the current job.
func (t *Table) CreateJob(processes []*Process, background bool, command string) *Job {
	j := &Job{
		ID:         t.allocateID(),
		Processes:  processes,
		State:      Running,
		Background: background,
		Command:    command,
		TraceID:    newTraceID(),
	}

	t.jobs[j.ID] = j
	t.order = append(t.order, j.ID)

	for _, p := range processes {
		if p.Pid > 0 {
			t.pidToJob[p.Pid] = j.ID
		}
	}

	if background {
		t.background[j.ID] = true
	}

	t.current = j.ID
	return j
}

// UpdatePidTable records a late-bound pid for a process whose fork
// completed after the job was created.
func (t *Table) UpdatePidTable(jobID, pid int) {
	t.pidToJob[pid] = jobID
}

// JobByID returns the job with the given id.
func (t *Table) JobByID(id int) (*Job, bool) {
	j, ok := t.jobs[id]
	return j, ok
}

// JobByPid returns the job containing pid.
func (t *Table) JobByPid(pid int) (*Job, bool) {
	id, ok := t.pidToJob[pid]
	if !ok {
		return nil, false
	}
	return t.JobByID(id)
}

// SetProcessStatus updates the named process's status and recomputes its
// job's state.
func (t *Table) SetProcessStatus(pid int, status Status) (*Job, bool) {
	j, ok := t.JobByPid(pid)
	if !ok {
		return nil, false
	}
	for _, p := range j.Processes {
		if p.Pid == pid {
			p.Status = &status
			break
		}
	}
	j.recompute()
	return j, true
}

func (t *Table) removeJob(j *Job) {
	delete(t.jobs, j.ID)
	delete(t.background, j.ID)
	for _, p := range j.Processes {
		delete(t.pidToJob, p.Pid)
	}
	for i, id := range t.order {
		if id == j.ID {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
	if t.current == j.ID {
		t.current = t.pickCurrent()
	}
}

// pickCurrent implements the "current_job" invariant: a job in state
// Stopped if one exists, else the most recently created live job.
func (t *Table) pickCurrent() int {
	for i := len(t.order) - 1; i >= 0; i-- {
		if j := t.jobs[t.order[i]]; j.State == Stopped {
			return j.ID
		}
	}
	if len(t.order) > 0 {
		return t.order[len(t.order)-1]
	}
	return 0
}

// DeleteJobByID removes the job, unless its state is Stopped, in which
// case the request is silently converted into the state update that
// already happened via SetProcessStatus/recompute.
func (t *Table) DeleteJobByID(id int) bool {
	j, ok := t.jobs[id]
	if !ok {
		return false
	}
	if j.State == Stopped {
		return false
	}
	t.removeJob(j)
	return true
}

// DeleteJobByPid removes the job containing pid, subject to the same
// Stopped-job exception as DeleteJobByID.
func (t *Table) DeleteJobByPid(pid int) bool {
	j, ok := t.JobByPid(pid)
	if !ok {
		return false
	}
	return t.DeleteJobByID(j.ID)
}

// Current returns the current job, if any.
func (t *Table) Current() (*Job, bool) {
	if t.current == 0 {
		return nil, false
	}
	return t.JobByID(t.current)
}

// SetCurrent explicitly sets the current job if id names a live job.
func (t *Table) SetCurrent(id int) {
	if _, ok := t.jobs[id]; ok {
		t.current = id
	}
}

// IsBackground reports whether id is tracked as a background job.
func (t *Table) IsBackground(id int) bool {
	return t.background[id]
}

// SetBackground updates id's background bookkeeping, used by bg.
func (t *Table) SetBackground(id int, background bool) {
	if background {
		t.background[id] = true
	} else {
		delete(t.background, id)
	}
	if j, ok := t.jobs[id]; ok {
		j.Background = background
	}
}

// Jobs returns every live job in id-sorted (creation) order.
func (t *Table) Jobs() []*Job {
	out := make([]*Job, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, t.jobs[id])
	}
	return out
}

// Empty reports whether the table holds no jobs, used by callers that
// want to confirm id recycling has occurred.
func (t *Table) Empty() bool {
	return len(t.jobs) == 0
}

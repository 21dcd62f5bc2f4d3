package service

import "sync"

// periodLocks 每个期间一把读写锁
// 写操作（填充、实际记录、状态变更）必须在开启事务之前拿写锁，报表拿读锁，
// 这样覆盖填充进行中既不会插入指向旧科目的实际，也不会被读到半新半旧的树。
type periodLocks struct {
	mu    sync.Mutex
	locks map[uint]*sync.RWMutex
}

func newPeriodLocks() *periodLocks {
	return &periodLocks{locks: make(map[uint]*sync.RWMutex)}
}

func (l *periodLocks) get(periodID uint) *sync.RWMutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.locks[periodID]
	if !ok {
		m = &sync.RWMutex{}
		l.locks[periodID] = m
	}
	return m
}

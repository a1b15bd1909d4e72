package processor

import "sync"

// keyLock 按键互斥锁，为同一(岗位,候选人)对上的两个事件流提供进程内互斥。
// 并发的简历上传或答卷提交如果落在同一键上，会被串行化执行
type keyLock struct {
	mu    sync.Mutex
	locks map[string]*keyLockEntry
}

type keyLockEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyLock() *keyLock {
	return &keyLock{
		locks: make(map[string]*keyLockEntry),
	}
}

// Lock 锁定指定键，返回解锁函数。
// 引用计数归零时回收条目，避免map无限增长
func (kl *keyLock) Lock(key string) func() {
	kl.mu.Lock()
	entry, ok := kl.locks[key]
	if !ok {
		entry = &keyLockEntry{}
		kl.locks[key] = entry
	}
	entry.refs++
	kl.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()

		kl.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(kl.locks, key)
		}
		kl.mu.Unlock()
	}
}

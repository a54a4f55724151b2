package errors

import "errors"

// ErrOptimisticLock 乐观锁冲突：记录已被其他操作修改
var ErrOptimisticLock = errors.New("数据已被其他操作修改，请刷新后重试")

// ErrLockBusy 排课锁被其他请求持有，等待超时
var ErrLockBusy = errors.New("该课时正在生成课次，请稍后重试")

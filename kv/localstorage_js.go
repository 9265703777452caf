//go:build js && wasm

package kv

import (
	"context"
	"fmt"
	"syscall/js"
)

// LocalStorage implements Storage on the browser's window.localStorage.
//
// Browsers throw from every localStorage call when storage is disabled, and
// from setItem when the origin's quota is full; both come back as errors.
type LocalStorage struct {
	kv js.Value
}

// NewLocalStorage binds to window.localStorage. Merely touching the property
// throws in some privacy modes, which is reported as ErrUnavailable.
func NewLocalStorage() (ls *LocalStorage, err error) {
	defer recoverJS("localStorage", &err)

	v := js.Global().Get("localStorage")
	if v.IsUndefined() || v.IsNull() {
		return nil, ErrUnavailable
	}
	return &LocalStorage{kv: v}, nil
}

func (l *LocalStorage) Get(_ context.Context, key string) (value string, found bool, err error) {
	defer recoverJS("getItem", &err)

	v := l.kv.Call("getItem", key)
	if v.IsNull() {
		return "", false, nil
	}
	return v.String(), true, nil
}

func (l *LocalStorage) Set(_ context.Context, key string, value string) (err error) {
	defer recoverJS("setItem", &err)

	l.kv.Call("setItem", key, value)
	return nil
}

func (l *LocalStorage) Remove(_ context.Context, key string) (err error) {
	defer recoverJS("removeItem", &err)

	l.kv.Call("removeItem", key)
	return nil
}

// recoverJS turns a thrown DOMException into an error.
func recoverJS(op string, err *error) {
	r := recover()
	if r == nil {
		return
	}
	jsErr, ok := r.(js.Error)
	if !ok {
		panic(r)
	}
	switch jsErr.Get("name").String() {
	case "QuotaExceededError", "NS_ERROR_DOM_QUOTA_REACHED":
		*err = fmt.Errorf("%s: %w: %s", op, ErrQuotaExceeded, jsErr.Error())
	default:
		*err = fmt.Errorf("%s: %w: %s", op, ErrUnavailable, jsErr.Error())
	}
}

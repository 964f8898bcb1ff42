package repository

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

type localEntry struct {
	url       string
	expiresAt time.Time
}

// LocalCache in-process уровень кэша для самых горячих кодов.
// Ограничен по размеру (LRU) и по возрасту записи; запись также не переживает
// срок жизни самой ссылки. Безопасен для конкурентного использования.
type LocalCache struct {
	lru *expirable.LRU[string, localEntry]
	now func() time.Time

	// сериализует записи, чтобы DeleteIfValue был атомарным относительно Put
	mu sync.Mutex
}

func NewLocalCache(size int, maxAge time.Duration) *LocalCache {
	return &LocalCache{
		lru: expirable.NewLRU[string, localEntry](size, nil, maxAge),
		now: time.Now,
	}
}

func (c *LocalCache) Get(code string) (string, bool) {
	entry, ok := c.lru.Get(code)
	if !ok {
		return "", false
	}

	if c.expired(entry) {
		c.mu.Lock()
		// между Get и Lock запись могла быть заменена свежим Put
		if cur, ok := c.lru.Peek(code); ok && cur == entry {
			c.lru.Remove(code)
		}
		c.mu.Unlock()
		return "", false
	}

	return entry.url, true
}

// Put кладёт url до expiresAt; нулевой expiresAt означает "до вытеснения"
func (c *LocalCache) Put(code, url string, expiresAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lru.Add(code, localEntry{url: url, expiresAt: expiresAt})
}

// PutIfAbsent кладёт url, только если для code нет живой записи.
// Возвращает false, если код уже занят другой записью.
func (c *LocalCache) PutIfAbsent(code, url string, expiresAt time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.lru.Peek(code); ok && !c.expired(entry) {
		return false
	}
	c.lru.Add(code, localEntry{url: url, expiresAt: expiresAt})
	return true
}

// DeleteIfValue удаляет запись, только если в ней всё ещё url
func (c *LocalCache) DeleteIfValue(code, url string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.lru.Peek(code)
	if !ok || entry.url != url {
		return false
	}
	return c.lru.Remove(code)
}

func (c *LocalCache) Len() int {
	return c.lru.Len()
}

func (c *LocalCache) expired(entry localEntry) bool {
	return !entry.expiresAt.IsZero() && !c.now().Before(entry.expiresAt)
}

package nvm

import "github.com/novariaos/novariaos-src/internal/ioport"

const MaxMessages = 256

// Message is one queued inter-process message: a single content byte
// addressed to a recipient pid, per the SYS_MSG_SEND/SYS_MSG_RECEIVE
// contract.
type Message struct {
	Sender    int
	Recipient int
	Content   byte
}

// MessageQueue is a single fixed-capacity FIFO shared by all recipients
// (MaxMessages in total); delivery order within a recipient's messages is
// preserved by always scanning from the head and compacting on receive.
type MessageQueue struct {
	lock ioport.Spinlock
	msgs []Message
}

func NewMessageQueue() *MessageQueue {
	q := &MessageQueue{}
	q.lock.Init()
	return q
}

// Send appends to the queue, dropping the message and reporting failure if
// the fixed capacity is exhausted.
func (q *MessageQueue) Send(sender, recipient int, content byte) bool {
	q.lock.Acquire()
	defer q.lock.Release()
	if len(q.msgs) >= MaxMessages {
		return false
	}
	q.msgs = append(q.msgs, Message{Sender: sender, Recipient: recipient, Content: content})
	return true
}

// Receive pops the first message addressed to pid, preserving FIFO order
// for every other recipient's messages.
func (q *MessageQueue) Receive(pid int) (Message, bool) {
	q.lock.Acquire()
	defer q.lock.Release()
	for i, m := range q.msgs {
		if m.Recipient == pid {
			q.msgs = append(q.msgs[:i], q.msgs[i+1:]...)
			return m, true
		}
	}
	return Message{}, false
}

// HasPending reports whether pid has at least one message waiting.
func (q *MessageQueue) HasPending(pid int) bool {
	q.lock.Acquire()
	defer q.lock.Release()
	for _, m := range q.msgs {
		if m.Recipient == pid {
			return true
		}
	}
	return false
}

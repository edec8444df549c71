package stream

import "github.com/hedisam/matpipe/models"

// queueNode represents a node in the queue.
type queueNode struct {
	msg  models.Message
	next *queueNode
}

// queue is an unbounded FIFO of messages. It is not safe for concurrent use; Stream guards it.
type queue struct {
	head *queueNode
	tail *queueNode
	size int
}

func (q *queue) Enqueue(msg models.Message) {
	node := &queueNode{msg: msg}
	q.size++
	if q.tail == nil {
		// queue is empty
		q.tail = node
		q.head = node
		return
	}

	q.tail.next = node
	q.tail = node
}

// Dequeue returns the oldest message, or false if the queue is empty.
func (q *queue) Dequeue() (models.Message, bool) {
	if q.head == nil {
		// queue is empty
		return models.Message{}, false
	}

	node := q.head
	q.head = q.head.next
	if q.head == nil {
		// queue becomes empty with this dequeue
		q.tail = nil
	}
	q.size--

	return node.msg, true
}

func (q *queue) Len() int {
	return q.size
}

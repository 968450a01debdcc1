/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package testutil

import (
	"errors"
	"net"
	"strconv"
	"time"
)

const waitPollInterval = 10 * time.Millisecond

func joinHostPort(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}

func waitPort(getPort func() int, deadline time.Time) (int, error) {
	for {
		if port := getPort(); port > 0 {
			return port, nil
		}
		if time.Now().After(deadline) {
			return 0, errors.New("waiting for port timed out")
		}
		time.Sleep(waitPollInterval)
	}
}

func waitListening(network, addr string, deadline time.Time) error {
	for {
		if conn, err := net.DialTimeout(network, addr, time.Second); err == nil {
			return conn.Close()
		}
		if time.Now().After(deadline) {
			return errors.New("waiting for listening server timed out")
		}
		time.Sleep(waitPollInterval)
	}
}

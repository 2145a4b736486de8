/*
Package config loads the rebalancer configuration file.

Load starts from Default and overlays the YAML document, so a file only
names what it changes:

	data_dir: /var/lib/rebalancer
	api:
	  addr: 0.0.0.0:9322
	collectors:
	  - name: compute
	    period: 1h
	compute:
	  driver: etcd            # static | etcd
	  inventory_file: inventory.yaml
	  etcd:
	    endpoints: [127.0.0.1:2379]
	    dial_timeout: 5s
	telemetry:
	  driver: prometheus      # prometheus | static
	  prometheus_url: http://127.0.0.1:9090
	audit:
	  workers: 4
	  queue_size: 64
	  overflow: reject        # reject | block
	reconciler:
	  interval: 10s

Validate reports every invalid setting at once. Command line flags are
applied by the caller after Load.
*/
package config

// Package config provides configuration loading for the IoT device daemons.
//
// A single YAML file configures all three daemons (button-pub, camera-sub,
// supervisor-sub); each daemon reads only the sections it needs. Loading
// order is defaults, then file, then IOT_* environment variables, then
// validation. No component reads configuration from package-level state:
// the relevant section is passed in at construction.
//
// # Example
//
//	thing:
//	  name: "porch-cam"
//	mqtt:
//	  endpoint: "a3k7odshaiipe8-ats.iot.us-east-1.amazonaws.com"
//	  root_ca: "/etc/iot/AmazonRootCA1.pem"
//	  cert: "/etc/iot/device.pem.crt"
//	  key: "/etc/iot/private.pem.key"
//	  qos: 1
//	topics:
//	  - "home/porch"
//	logging:
//	  level: "info"
//	  format: "json"
package config

// HealthDuck - Apple Health Export Importer and Query Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/healthduck

package healthimport

import (
	"os"
	"path/filepath"
	"testing"
)

const minimalExportXML = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE HealthData>
<HealthData locale="en_US">
 <Record type="HKQuantityTypeIdentifierHeartRate" sourceName="Apple Watch" unit="count/min" value="72" startDate="2024-01-01 08:00:00 +0000" endDate="2024-01-01 08:01:00 +0000">
  <MetadataEntry key="HKMetadataKeyHeartRateMotionContext" value="1"/>
 </Record>
 <Record type="HKQuantityTypeIdentifierStepCount" sourceName="iPhone" unit="count" value="1500" startDate="2024-01-01 09:00:00 +0000" endDate="2024-01-01 09:30:00 +0000"/>
 <Workout workoutActivityType="HKWorkoutActivityTypeRunning" duration="1800" durationUnit="sec" totalDistance="5000" totalDistanceUnit="m" totalEnergyBurned="300" totalEnergyBurnedUnit="kcal" sourceName="Apple Watch" startDate="2024-01-01 10:00:00 +0000" endDate="2024-01-01 10:30:00 +0000">
  <MetadataEntry key="HKIndoorWorkout" value="0"/>
  <WorkoutEvent type="HKWorkoutEventTypeLap" date="2024-01-01 10:15:00 +0000"/>
  <WorkoutStatistics type="HKQuantityTypeIdentifierHeartRate" startDate="2024-01-01 10:00:00 +0000" endDate="2024-01-01 10:30:00 +0000" average="150" minimum="120" maximum="180" unit="count/min"/>
  <WorkoutRoute sourceName="Apple Watch">
   <FileReference path="/workout-routes/route_2024-01-01.gpx"/>
  </WorkoutRoute>
 </Workout>
 <Correlation type="HKCorrelationTypeIdentifierBloodPressure" sourceName="BP Monitor" startDate="2024-01-01 12:00:00 +0000" endDate="2024-01-01 12:00:00 +0000">
  <Record type="HKQuantityTypeIdentifierBloodPressureSystolic" sourceName="BP Monitor" unit="mmHg" value="120" startDate="2024-01-01 12:00:00 +0000" endDate="2024-01-01 12:00:00 +0000"/>
 </Correlation>
 <ActivitySummary dateComponents="2024-01-01" activeEnergyBurned="500" activeEnergyBurnedGoal="600" appleExerciseTime="30" appleExerciseTimeGoal="30" appleStandHours="10" appleStandHoursGoal="12"/>
</HealthData>`

const minimalECG = "Name,Test User\n" +
	"Date of Birth,1990-01-01\n" +
	"Recorded Date,2024-06-15 10:30:00 +0000\n" +
	"Classification,Sinus Rhythm\n" +
	"Symptoms,None\n" +
	"Software Version,2.0\n" +
	"Device,\"Apple Watch\"\n" +
	"Sample Rate,512.000 Hz\n" +
	"Lead,Lead I\n" +
	"Unit,µV\n" +
	"\n" +
	"100\n" +
	"200\n" +
	"-50\n" +
	"150\n" +
	"75"

const minimalGPX = `<?xml version="1.0" encoding="UTF-8"?>
<gpx xmlns="http://www.topografix.com/GPX/1/1" version="1.1">
  <trk>
    <trkseg>
      <trkpt lat="37.7749" lon="-122.4194">
        <ele>10.5</ele>
        <time>2024-01-01T10:00:00Z</time>
        <extensions>
          <speed>3.5</speed>
          <course>180.0</course>
          <hAcc>5.0</hAcc>
          <vAcc>3.0</vAcc>
        </extensions>
      </trkpt>
      <trkpt lat="37.7750" lon="-122.4195">
        <ele>11.0</ele>
        <time>2024-01-01T10:00:05Z</time>
        <extensions>
          <speed>3.6</speed>
          <course>181.0</course>
          <hAcc>4.5</hAcc>
          <vAcc>2.8</vAcc>
        </extensions>
      </trkpt>
    </trkseg>
  </trk>
</gpx>`

const routeFileName = "route_2024-01-01.gpx"

// writeExport lays out a complete export in a temp directory. extra maps
// paths relative to the export root to file contents.
func writeExport(t *testing.T, extra map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		ExportFileName: minimalExportXML,
		filepath.Join(ECGDirName, "ecg_2024-06-15.csv"): minimalECG,
		filepath.Join(RoutesDirName, routeFileName):     minimalGPX,
	}
	for k, v := range extra {
		files[k] = v
	}
	for rel, content := range files {
		path := filepath.Join(dir, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			t.Fatalf("MkdirAll() error = %v", err)
		}
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatalf("WriteFile(%s) error = %v", rel, err)
		}
	}
	return dir
}

// collect runs fn against a fresh CollectingSink and returns what it received.
func collect(t *testing.T, fn func(sink Sink) error) []Entity {
	t.Helper()
	sink := &CollectingSink{}
	if err := fn(sink); err != nil {
		t.Fatalf("parse error = %v", err)
	}
	return sink.Entities()
}

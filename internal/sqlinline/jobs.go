package sqlinline

// Queries returning a full job row share the column order read by repo.scanJob.

const QInsertJob = `--sql af8de648-36c4-41db-abbd-6ee7cdf5eab1
insert into generation_jobs(
  id,
  user_id,
  model,
  kind,
  input,
  status,
  credits_charged,
  refunded,
  created_at,
  updated_at
) values (
  $1::uuid,
  $2::uuid,
  $3::text,
  $4::text,
  coalesce($5::jsonb, '{}'::jsonb),
  'pending',
  $6::bigint,
  false,
  $7::timestamptz,
  $7::timestamptz
);
`

const QSelectJobByID = `--sql d9c7933b-0300-43d2-97b4-f2d81072b9e7
select id, user_id, model, kind, input, coalesce(external_task_id, ''), status, result_payload,
       coalesce(error_detail, ''), credits_charged, refunded, coalesce(thumbnail_key, ''),
       created_at, updated_at, completed_at
from generation_jobs
where id = $1::uuid
limit 1;
`

const QSelectJobByTaskID = `--sql fb0aff5b-4179-44c8-b5b4-7e0cf3965b86
select id, user_id, model, kind, input, coalesce(external_task_id, ''), status, result_payload,
       coalesce(error_detail, ''), credits_charged, refunded, coalesce(thumbnail_key, ''),
       created_at, updated_at, completed_at
from generation_jobs
where external_task_id = $1::text
limit 1;
`

const QListJobsByUser = `--sql 9e7329fe-270f-4eb4-a0c4-0f97870d70a7
select id, user_id, model, kind, input, coalesce(external_task_id, ''), status, result_payload,
       coalesce(error_detail, ''), credits_charged, refunded, coalesce(thumbnail_key, ''),
       created_at, updated_at, completed_at
from generation_jobs
where user_id = $1::uuid
order by created_at desc
limit $2::int;
`

const QMarkJobProcessing = `--sql 49f0616a-2092-4d0a-8509-c14b89113d4b
update generation_jobs
set status = 'processing',
    external_task_id = $2::text,
    updated_at = now()
where id = $1::uuid
  and status = 'pending'
  and external_task_id is null
returning id, user_id, model, kind, input, coalesce(external_task_id, ''), status, result_payload,
          coalesce(error_detail, ''), credits_charged, refunded, coalesce(thumbnail_key, ''),
          created_at, updated_at, completed_at;
`

const QMarkJobSubmitFailed = `--sql e9195e48-4bdb-44da-a91a-536b2172b42f
update generation_jobs
set status = 'failed',
    error_detail = $2::text,
    completed_at = $3::timestamptz,
    updated_at = now()
where id = $1::uuid
  and status = 'pending'
returning id, user_id, model, kind, input, coalesce(external_task_id, ''), status, result_payload,
          coalesce(error_detail, ''), credits_charged, refunded, coalesce(thumbnail_key, ''),
          created_at, updated_at, completed_at;
`

// QFinalizeJob is the reconciliation gate: only one caller can move a job out
// of processing.
const QFinalizeJob = `--sql ee53693a-37ee-4792-bca9-d74da33d7dce
update generation_jobs
set status = $2::text,
    result_payload = $3::jsonb,
    error_detail = nullif($4::text, ''),
    completed_at = $5::timestamptz,
    updated_at = now()
where id = $1::uuid
  and status = 'processing'
returning id, user_id, model, kind, input, coalesce(external_task_id, ''), status, result_payload,
          coalesce(error_detail, ''), credits_charged, refunded, coalesce(thumbnail_key, ''),
          created_at, updated_at, completed_at;
`

const QSetJobThumbnail = `--sql df671c17-0d3f-409b-a96f-57e081015ae6
update generation_jobs
set thumbnail_key = $2::text,
    updated_at = now()
where id = $1::uuid;
`

const QListJobsByStatus = `--sql b3e42cc3-48bc-4f2c-9700-bc16473a2e3c
select id, user_id, model, kind, input, coalesce(external_task_id, ''), status, result_payload,
       coalesce(error_detail, ''), credits_charged, refunded, coalesce(thumbnail_key, ''),
       created_at, updated_at, completed_at
from generation_jobs
where status = $1::text
  and created_at < $2::timestamptz
order by created_at asc
limit $3::int;
`

const QListUnrefundedFailures = `--sql 5824d0c3-d62c-43fb-bf73-712004c3bc3b
select id, user_id, model, kind, input, coalesce(external_task_id, ''), status, result_payload,
       coalesce(error_detail, ''), credits_charged, refunded, coalesce(thumbnail_key, ''),
       created_at, updated_at, completed_at
from generation_jobs
where status = 'failed'
  and refunded = false
  and credits_charged > 0
order by completed_at asc nulls first
limit $1::int;
`
